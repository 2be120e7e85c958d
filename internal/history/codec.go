package history

import "github.com/fxamacker/cbor/v2"

// encMode uses Core Deterministic Encoding with RFC 3339 timestamps.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	encMode, err = opts.EncMode()
	if err != nil {
		panic("history: CBOR encoder initialization failed: " + err.Error())
	}

	// Unknown fields are ignored so older binaries can read newer records.
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("history: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
