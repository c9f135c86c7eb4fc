package cameracapture

import "strconv"

// ChooseSize returns requested when the device supports it, otherwise the
// first supported size. ok reports whether the request was honoured. With an
// empty list the request is passed through and the device decides.
func ChooseSize(requested Size, supported []Size) (chosen Size, ok bool) {
	for _, s := range supported {
		if s == requested {
			return s, true
		}
	}
	if len(supported) == 0 {
		return requested, false
	}
	return supported[0], false
}

// ChooseMode returns requested when it is one of the supported values
// (exact, case-sensitive match), or "" when it is not requested or not
// supported.
func ChooseMode(requested string, supported []string) string {
	if requested == "" {
		return ""
	}
	for _, m := range supported {
		if m == requested {
			return m
		}
	}
	return ""
}

// ChooseZoom parses requested as a zoom ratio in hundredths and returns its
// index in the device ratio list. Zoom is only applied when the device
// supports it; a non-numeric request is ignored like an unsupported one.
func ChooseZoom(requested string, caps Capabilities) (index, ratio int, ok bool) {
	if requested == "" || !caps.ZoomSupported {
		return -1, 0, false
	}
	want, err := strconv.Atoi(requested)
	if err != nil {
		return -1, 0, false
	}
	for i, r := range caps.ZoomRatios {
		if r == want {
			return i, r, true
		}
	}
	return -1, 0, false
}

// negotiate builds the settings to commit for p against caps.
func negotiate(p OpenParams, caps Capabilities) Settings {
	size, _ := ChooseSize(Size{Width: p.Width, Height: p.Height}, caps.PreviewSizes)
	zoom, _, _ := ChooseZoom(p.Zoom, caps)
	return Settings{
		PreviewSize: size,
		FocusMode:   ChooseMode(p.Focus, caps.FocusModes),
		ColorEffect: ChooseMode(p.Effect, caps.ColorEffects),
		SceneMode:   ChooseMode(p.Scene, caps.SceneModes),
		ZoomIndex:   zoom,
	}
}
