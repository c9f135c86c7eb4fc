package gstdevice

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"

	cameracapture "github.com/e7canasta/orion-care-sensor/modules/camera-capture"
)

// ClassifyError maps a GStreamer bus error to an error category.
//
// go-gst's GError does not expose the error domain, so classification is
// keyword matching over the message and debug string.
func ClassifyError(gerr *gst.GError) cameracapture.ErrorCategory {
	if gerr == nil {
		return cameracapture.ErrCategoryUnknown
	}
	return classify(gerr.Error(), gerr.DebugString())
}

var (
	permissionKeywords = []string{
		"permission denied",
		"not permitted",
		"eacces",
		"not authorized",
	}
	formatKeywords = []string{
		"not negotiated",
		"negotiation",
		"caps",
		"format",
		"pixel",
		"resolution",
	}
	deviceKeywords = []string{
		"no such device",
		"no such file",
		"device",
		"busy",
		"could not open",
		"cannot identify",
		"v4l2",
		"not found",
	}
	streamKeywords = []string{
		"stream",
		"internal data",
		"flow",
		"buffer",
		"timeout",
	}
)

func classify(errMsg, debug string) cameracapture.ErrorCategory {
	combined := strings.ToLower(errMsg + " " + debug)

	// Ordered from most to least specific.
	switch {
	case containsAny(combined, permissionKeywords):
		return cameracapture.ErrCategoryPermission
	case containsAny(combined, formatKeywords):
		return cameracapture.ErrCategoryFormat
	case containsAny(combined, deviceKeywords):
		return cameracapture.ErrCategoryDevice
	case containsAny(combined, streamKeywords):
		return cameracapture.ErrCategoryStream
	}
	return cameracapture.ErrCategoryUnknown
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
