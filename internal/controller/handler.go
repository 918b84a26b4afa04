package controller

// communicationHandler routes one serial transaction to whichever of
// the digital controller or memory card acknowledges the addressing
// byte (0x01 or 0x81), then forwards the rest of the transaction to
// it until it reports no more bytes expected.
type communicationHandler struct {
	controller  *DigitalController
	memoryCard  MemoryCard
	hasCard     bool

	state     int
	routedTo  int // 0 = none yet, 1 = controller, 2 = memory card
	wantsMore bool
}

const (
	routeNone = iota
	routeController
	routeMemoryCard
)

func newCommunicationHandler(slot int, hasController bool) communicationHandler {
	h := communicationHandler{memoryCard: *newMemoryCard(), hasCard: true}
	if hasController {
		h.controller = newDigitalController()
	}
	return h
}

func (h *communicationHandler) changeControllerKeyState(key DigitalControllerKey, pressed bool) {
	if h.controller != nil {
		h.controller.changeKeyState(key, pressed)
	}
}

// exchangeBytes processes one byte of the transaction, starting a new
// transaction at state 0.
func (h *communicationHandler) exchangeBytes(in uint8) uint8 {
	if h.state == 0 {
		h.routedTo = routeNone
		if h.controller != nil {
			if resp, ok := h.controller.startAccess(in); ok {
				h.routedTo = routeController
				h.state = 1
				h.wantsMore = true
				return resp
			}
		}
		if h.hasCard {
			if resp, ok := h.memoryCard.startAccess(in); ok {
				h.routedTo = routeMemoryCard
				h.state = 1
				h.wantsMore = true
				return resp
			}
		}
		h.wantsMore = false
		return 0xFF
	}

	var resp uint8
	var more bool
	switch h.routedTo {
	case routeController:
		resp, more = h.controller.exchangeByte(h.state-1, in)
	case routeMemoryCard:
		resp, more = h.memoryCard.exchangeByte(h.state-1, in)
	default:
		resp, more = 0xFF, false
	}

	h.wantsMore = more
	if more {
		h.state++
	} else {
		h.state = 0
	}
	return resp
}

// hasMore reports whether the device addressed by the in-flight
// transaction expects another byte (drives the ACK interrupt).
func (h *communicationHandler) hasMore() bool { return h.wantsMore }
