package sidus

// Parse decodes a 10-byte Sidus payload into a Command. It verifies the
// checksum first and never returns a partially-trusted Command: a
// checksum mismatch is the only error that can occur before any field is
// interpreted, and an unrecognized commandType yields ErrUnknownCommandType
// rather than a best-effort guess.
func Parse(payload [PayloadSize]byte) (Command, error) {
	if payload[0] != checksum(payload) {
		return Command{}, ErrChecksumMismatch
	}

	r := NewBitReader(payload)
	operaType := r.ReadField(1)
	_ = operaType
	commandType := CommandType(r.ReadField(7))

	switch commandType {
	case CommandTypeCCT:
		c := decodeCCTFields(r, 10)
		return Command{Type: CommandTypeCCT, CCT: &c}, nil
	case CommandTypeSleep:
		c := decodeCCTFields(r, 10)
		return Command{Type: CommandTypeSleep, Sleep: &Sleep{SleepMode: c.SleepMode}}, nil
	case CommandTypeHSI:
		h := decodeHSIFields(r)
		return Command{Type: CommandTypeHSI, HSI: &h}, nil
	case CommandTypeEffect:
		e, err := decodeEffectFields(r)
		if err != nil {
			return Command{}, err
		}
		return Command{Type: CommandTypeEffect, Effect: &e}, nil
	default:
		return Command{}, ErrUnknownCommandType
	}
}

// decodeCCTFields reads the CCT field layout (shared with Sleep) in the
// exact reverse of encodeCCT's write order. The multiplier parameter
// exists so the same shape could serve a differently-scaled caller; CCT
// and Sleep both use 10.
func decodeCCTFields(r *BitReader, multiplier uint16) CCT {
	intensity := r.ReadField(10)
	cctValue := r.ReadField(10)
	gmValue := r.ReadField(7)
	gmHigh := r.ReadField(1) == 1
	gmFlag := r.ReadField(1) == 1
	cctHigh := r.ReadField(1) == 1
	autoPatch := r.ReadField(1) == 1
	r.ReadField(12) // reserved
	r.ReadField(20) // reserved
	sleepMode := r.ReadField(1) == 1
	r.ReadField(8) // reserved

	var cct uint16
	if cctHigh {
		cct = uint16(cctValue) + 1000
	} else {
		cct = uint16(cctValue)
	}

	var gm uint8
	if gmFlag {
		if gmHigh {
			gm = uint8(gmValue) + 100
		} else {
			gm = uint8(gmValue)
		}
	} else {
		gm = uint8(gmValue) * 10
	}

	return CCT{
		Intensity: uint16(intensity),
		CCT:       cct,
		GM:        gm,
		GMFlag:    gmFlag,
		SleepMode: sleepMode,
		AutoPatch: autoPatch,
	}
}

func decodeHSIFields(r *BitReader) HSI {
	intensity := r.ReadField(10)
	hue := r.ReadField(9)
	sat := r.ReadField(7)
	cctValue := r.ReadField(8)
	gmValue := r.ReadField(7)
	gmHigh := r.ReadField(1) == 1
	gmFlag := r.ReadField(1) == 1
	cctHigh := r.ReadField(1) == 1
	autoPatch := r.ReadField(1) == 1
	r.ReadField(18) // reserved
	sleepMode := r.ReadField(1) == 1
	r.ReadField(8) // reserved

	var cct uint16
	if cctHigh {
		cct = uint16(cctValue) + 200
	} else {
		cct = uint16(cctValue)
	}

	var gm uint8
	if gmFlag {
		if gmHigh {
			gm = uint8(gmValue) + 100
		} else {
			gm = uint8(gmValue)
		}
	} else {
		gm = uint8(gmValue) * 10
	}

	return HSI{
		Intensity: uint16(intensity),
		Hue:       uint16(hue),
		Sat:       uint8(sat),
		CCT:       cct,
		GM:        gm,
		GMFlag:    gmFlag,
		SleepMode: sleepMode,
		AutoPatch: autoPatch,
	}
}

func decodeEffectFields(r *BitReader) (Effect, error) {
	effectType := EffectType(r.ReadField(8))

	e := Effect{EffectType: effectType}
	switch effectType {
	case EffectCandle, EffectFire, EffectTV:
		used := 10 + 4 + 10
		e.Intensity = uint16(r.ReadField(10))
		e.Frequency = uint8(r.ReadField(4))
		e.CCT = uint16(r.ReadField(10))
		r.ReadField(effectBodyWidth - used)
	case EffectPaparazzi:
		used := 10 + 8 + 4 + 10
		e.Intensity = uint16(r.ReadField(10))
		e.Frequency = uint8(r.ReadField(4))
		e.GM = uint8(r.ReadField(8))
		e.CCT = uint16(r.ReadField(10))
		r.ReadField(effectBodyWidth - used)
	case EffectLightning:
		used := 10 + 8 + 4 + 10 + 4 + 2
		e.Trigger = uint8(r.ReadField(2))
		e.Speed = uint8(r.ReadField(4))
		e.Intensity = uint16(r.ReadField(10))
		e.Frequency = uint8(r.ReadField(4))
		e.GM = uint8(r.ReadField(8))
		e.CCT = uint16(r.ReadField(10))
		r.ReadField(effectBodyWidth - used)
	case EffectCopCar:
		e.Colour = uint8(r.ReadField(4))
		r.ReadField(effectBodyWidth - 4)
	case EffectParty:
		e.Sat = uint8(r.ReadField(7))
		r.ReadField(effectBodyWidth - 7)
	case EffectFireworks:
		e.Mode = uint8(r.ReadField(8))
		r.ReadField(effectBodyWidth - 8)
	case EffectStrobe, EffectExplosion:
		used := 4 + 10 + 8 + 2
		e.Trigger = uint8(r.ReadField(2))
		e.GM = uint8(r.ReadField(8))
		e.CCT = uint16(r.ReadField(10))
		e.Mode = uint8(r.ReadField(4))
		r.ReadField(effectBodyWidth - used)
	case EffectFaultyBulb, EffectPulsing:
		used := 4 + 10 + 8 + 2 + 4
		e.Speed = uint8(r.ReadField(4))
		e.Trigger = uint8(r.ReadField(2))
		e.GM = uint8(r.ReadField(8))
		e.CCT = uint16(r.ReadField(10))
		e.Mode = uint8(r.ReadField(4))
		r.ReadField(effectBodyWidth - used)
	case EffectWelding:
		used := 4 + 10 + 8 + 2 + 4 + 7
		e.Min = uint8(r.ReadField(7))
		e.Speed = uint8(r.ReadField(4))
		e.Trigger = uint8(r.ReadField(2))
		e.GM = uint8(r.ReadField(8))
		e.CCT = uint16(r.ReadField(10))
		e.Mode = uint8(r.ReadField(4))
		r.ReadField(effectBodyWidth - used)
	case EffectOff:
		r.ReadField(effectBodyWidth)
	default:
		return Effect{}, ErrUnknownEffectType
	}

	return e, nil
}
