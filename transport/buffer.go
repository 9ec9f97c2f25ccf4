package transport

// datatypeOf returns the datatype that matches the Go type of buf.
func datatypeOf(buf any) Datatype {
	switch buf.(type) {
	case []TimeMessage:
		return TimeMessageType
	case []int:
		return IntType
	case []float64:
		return Float64Type
	default:
		return UnknownType
	}
}

func bufferLen(buf any) int {
	switch b := buf.(type) {
	case []TimeMessage:
		return len(b)
	case []int:
		return len(b)
	case []float64:
		return len(b)
	default:
		return 0
	}
}

// bufferMustMatch validates a user buffer against the count and datatype of
// an operation.
func bufferMustMatch(buf any, count int, dtype Datatype) error {
	if count < 0 {
		return ErrCount
	}

	if dtype == UnknownType {
		return ErrType
	}

	if count == 0 && buf == nil {
		return nil
	}

	if datatypeOf(buf) != dtype {
		return ErrType
	}

	if bufferLen(buf) < count {
		return ErrBuffer
	}

	return nil
}

// subBuffer returns the view buf[offset:offset+count], or nil when count is
// zero.
func subBuffer(buf any, offset, count int) any {
	if count == 0 {
		return nil
	}

	switch b := buf.(type) {
	case []TimeMessage:
		return b[offset : offset+count]
	case []int:
		return b[offset : offset+count]
	case []float64:
		return b[offset : offset+count]
	default:
		panic("unsupported buffer type")
	}
}

// clonePayload copies the first count elements of buf so that the caller can
// reuse buf as soon as the send call returns.
func clonePayload(buf any, count int, dtype Datatype) any {
	switch dtype {
	case TimeMessageType:
		out := make([]TimeMessage, count)
		if count > 0 {
			copy(out, buf.([]TimeMessage)[:count])
		}
		return out
	case IntType:
		out := make([]int, count)
		if count > 0 {
			copy(out, buf.([]int)[:count])
		}
		return out
	case Float64Type:
		out := make([]float64, count)
		if count > 0 {
			copy(out, buf.([]float64)[:count])
		}
		return out
	default:
		panic("unsupported datatype")
	}
}

// copyPayload copies at most limit elements of payload into dst and returns
// the number of elements copied.
func copyPayload(dst any, payload any, limit int) int {
	if limit == 0 {
		return 0
	}

	switch p := payload.(type) {
	case []TimeMessage:
		return copy(dst.([]TimeMessage)[:limit], p)
	case []int:
		return copy(dst.([]int)[:limit], p)
	case []float64:
		return copy(dst.([]float64)[:limit], p)
	default:
		panic("unsupported payload type")
	}
}
