package controller

// DigitalController models a standard digital pad: device id 0x5A41,
// a normal-mode 4-byte handshake returning the switch bitmask, and a
// config-mode handshake (entered via 0x43) supporting a handful of
// DualShock-era enumeration commands the games probe for even when no
// analog stick is present.
type DigitalController struct {
	buttons     uint16 // bit set = released, matching the wire polarity
	configMode  bool
	led         bool
	rumbleMotor [6]uint8
}

func newDigitalController() *DigitalController {
	return &DigitalController{buttons: 0xFFFF}
}

func (d *DigitalController) changeKeyState(key DigitalControllerKey, pressed bool) {
	if pressed {
		d.buttons &^= key.mask()
	} else {
		d.buttons |= key.mask()
	}
}

// startAccess begins a transaction addressed to this device; returns
// (firstReplyByte, ok). ok is false if the device does not respond
// (first byte of a transaction must be the access command 0x01).
func (d *DigitalController) startAccess(firstByte uint8) (uint8, bool) {
	if firstByte != 0x01 {
		return 0xFF, false
	}
	return 0xFF, true
}

// exchangeByte drives one byte of a transaction already addressed to
// this device via startAccess, returning the response byte and
// whether another byte is expected.
func (d *DigitalController) exchangeByte(state int, in uint8) (resp uint8, more bool) {
	if d.configMode {
		return d.exchangeConfig(state, in)
	}
	return d.exchangeNormal(state, in)
}

// exchangeNormal implements the 4-state plain-pad handshake:
// cmd -> idLo -> idHi -> switchesLo -> switchesHi.
func (d *DigitalController) exchangeNormal(state int, in uint8) (uint8, bool) {
	switch state {
	case 0:
		if in == 0x43 {
			d.configMode = true
		}
		return 0x41, true // device id low byte
	case 1:
		return 0x5A, true // device id high byte
	case 2:
		return uint8(d.buttons), true
	case 3:
		return uint8(d.buttons >> 8), false
	}
	return 0xFF, false
}

// exchangeConfig implements the extended config-mode handshake: same
// id/switches preamble, then four 0x00 bytes whatever the command byte
// was (no per-command LED, rumble or variable-response replies).
// Config mode is left when the last byte (state 7) received is 0x00.
func (d *DigitalController) exchangeConfig(state int, in uint8) (uint8, bool) {
	switch state {
	case 0:
		if in == 0x00 {
			// config mode is left at state 7, not here.
		}
		return 0x41, true
	case 1:
		return 0x5A, true
	case 2:
		return uint8(d.buttons), true
	case 3:
		return uint8(d.buttons >> 8), true
	case 4:
		return 0x00, true
	case 5:
		return 0x00, true
	case 6:
		return 0x00, true
	case 7:
		if in == 0x00 {
			d.configMode = false
		}
		return 0x00, false
	}
	return 0xFF, false
}
