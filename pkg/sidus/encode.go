package sidus

import "math"

// Encode serializes cmd into a 10-byte Sidus wire payload, with the
// checksum byte already computed and in place at byte 0.
func Encode(cmd Command) ([PayloadSize]byte, error) {
	var body [PayloadSize]byte
	var err error

	switch cmd.Type {
	case CommandTypeCCT:
		if cmd.CCT == nil {
			return body, ErrMissingFields
		}
		body = encodeCCT(*cmd.CCT, CommandTypeCCT)
	case CommandTypeHSI:
		if cmd.HSI == nil {
			return body, ErrMissingFields
		}
		body = encodeHSI(*cmd.HSI)
	case CommandTypeSleep:
		if cmd.Sleep == nil {
			return body, ErrMissingFields
		}
		body = encodeCCT(CCT{SleepMode: cmd.Sleep.SleepMode}, CommandTypeSleep)
	case CommandTypeEffect:
		if cmd.Effect == nil {
			return body, ErrMissingFields
		}
		body, err = encodeEffect(*cmd.Effect)
		if err != nil {
			return body, err
		}
	default:
		return body, ErrUnknownCommandType
	}

	body[0] = checksum(body)
	return body, nil
}

// checksum computes byte0 = sum(bytes[1..9]) mod 256.
func checksum(body [PayloadSize]byte) byte {
	var sum byte
	for i := 1; i < PayloadSize; i++ {
		sum += body[i]
	}
	return sum
}

// gmFields converts the 0-200 GM tint value into the (gmFlag, gmHigh,
// gmValue) triple the wire format uses.
func gmFields(gm uint8, gmFlag bool) (flag, high bool, value uint32) {
	flag = gmFlag
	if !gmFlag {
		return false, false, uint32(math.Round(float64(gm) / 10))
	}
	if gm > 100 {
		return true, true, uint32(gm) - 100
	}
	return true, false, uint32(gm)
}

// cctFields converts a 180-2000 (units of 10K) value into the wire's
// (highFlag, value) pair for a given multiplier (10 for CCT, 50 for HSI).
func cctFields(cct uint16, multiplier uint32) (high bool, value uint32) {
	scaled := uint32(cct) * multiplier
	if scaled > 10000 {
		return true, (scaled - 10000) / multiplier
	}
	return false, scaled / multiplier
}

// encodeCCT writes the CCT field layout (also reused, with colour fields
// zeroed, for Sleep).
func encodeCCT(c CCT, commandType CommandType) [PayloadSize]byte {
	w := NewBitWriter()

	w.WriteField(0, 8) // reserved
	w.WriteField(b2u(c.SleepMode), 1)
	w.WriteField(0, 20) // reserved
	w.WriteField(0, 12) // reserved
	w.WriteField(b2u(c.AutoPatch), 1)

	cctHigh, cctValue := cctFields(c.CCT, 10)
	w.WriteField(b2u(cctHigh), 1)

	gmFlag, gmHigh, gmValue := gmFields(c.GM, c.GMFlag)
	w.WriteField(b2u(gmFlag), 1)
	w.WriteField(b2u(gmHigh), 1)
	w.WriteField(gmValue, 7)

	w.WriteField(cctValue, 10)
	w.WriteField(uint32(c.Intensity), 10)
	w.WriteField(uint32(commandType), 7)
	w.WriteField(1, 1) // operaType

	return w.Bytes()
}

func encodeHSI(h HSI) [PayloadSize]byte {
	w := NewBitWriter()

	w.WriteField(0, 8) // reserved
	w.WriteField(b2u(h.SleepMode), 1)
	w.WriteField(0, 18) // reserved
	w.WriteField(b2u(h.AutoPatch), 1)

	cctHigh, cctValue := cctFields(h.CCT, 50)
	w.WriteField(b2u(cctHigh), 1)

	gmFlag, gmHigh, gmValue := gmFields(h.GM, h.GMFlag)
	w.WriteField(b2u(gmFlag), 1)
	w.WriteField(b2u(gmHigh), 1)
	w.WriteField(gmValue, 7)

	w.WriteField(cctValue, 8)
	w.WriteField(uint32(h.Sat), 7)
	w.WriteField(uint32(h.Hue), 9)
	w.WriteField(uint32(h.Intensity), 10)
	w.WriteField(uint32(CommandTypeHSI), 7)
	w.WriteField(1, 1)

	return w.Bytes()
}

// effectBodyWidth is the bit budget available to each effect's
// sub-layout once the 8+7+1 = 16-bit common footer (effectType,
// commandType, operaType) is reserved from the 80-bit payload.
//
// Each sub-layout pads out to this width with a single leading
// reserved field, mirroring the reserved-field-first convention CCT
// and HSI both use, so the footer always lands at the same bit offset,
// byte 0 (overwritten by the checksum) is always padding, and every
// effect round-trips exactly.
const effectBodyWidth = 64

func encodeEffect(e Effect) ([PayloadSize]byte, error) {
	w := NewBitWriter()

	var used int
	switch e.EffectType {
	case EffectCandle, EffectFire, EffectTV:
		used = 10 + 4 + 10
		w.WriteField(0, effectBodyWidth-used)
		w.WriteField(uint32(e.CCT), 10)
		w.WriteField(uint32(e.Frequency), 4)
		w.WriteField(uint32(e.Intensity), 10)
	case EffectPaparazzi:
		used = 10 + 8 + 4 + 10
		w.WriteField(0, effectBodyWidth-used)
		w.WriteField(uint32(e.CCT), 10)
		w.WriteField(uint32(e.GM), 8)
		w.WriteField(uint32(e.Frequency), 4)
		w.WriteField(uint32(e.Intensity), 10)
	case EffectLightning:
		used = 10 + 8 + 4 + 10 + 4 + 2
		w.WriteField(0, effectBodyWidth-used)
		w.WriteField(uint32(e.CCT), 10)
		w.WriteField(uint32(e.GM), 8)
		w.WriteField(uint32(e.Frequency), 4)
		w.WriteField(uint32(e.Intensity), 10)
		w.WriteField(uint32(e.Speed), 4)
		w.WriteField(uint32(e.Trigger), 2)
	case EffectCopCar:
		used = 4
		w.WriteField(0, effectBodyWidth-used)
		w.WriteField(uint32(e.Colour), 4)
	case EffectParty:
		used = 7
		w.WriteField(0, effectBodyWidth-used)
		w.WriteField(uint32(e.Sat), 7)
	case EffectFireworks:
		used = 8
		w.WriteField(0, effectBodyWidth-used)
		w.WriteField(uint32(e.Mode), 8)
	case EffectStrobe, EffectExplosion:
		used = 4 + 10 + 8 + 2
		w.WriteField(0, effectBodyWidth-used)
		w.WriteField(uint32(e.Mode), 4)
		w.WriteField(uint32(e.CCT), 10)
		w.WriteField(uint32(e.GM), 8)
		w.WriteField(uint32(e.Trigger), 2)
	case EffectFaultyBulb, EffectPulsing:
		used = 4 + 10 + 8 + 2 + 4
		w.WriteField(0, effectBodyWidth-used)
		w.WriteField(uint32(e.Mode), 4)
		w.WriteField(uint32(e.CCT), 10)
		w.WriteField(uint32(e.GM), 8)
		w.WriteField(uint32(e.Trigger), 2)
		w.WriteField(uint32(e.Speed), 4)
	case EffectWelding:
		used = 4 + 10 + 8 + 2 + 4 + 7
		w.WriteField(0, effectBodyWidth-used)
		w.WriteField(uint32(e.Mode), 4)
		w.WriteField(uint32(e.CCT), 10)
		w.WriteField(uint32(e.GM), 8)
		w.WriteField(uint32(e.Trigger), 2)
		w.WriteField(uint32(e.Speed), 4)
		w.WriteField(uint32(e.Min), 7)
	case EffectOff:
		w.WriteField(0, effectBodyWidth)
	default:
		var empty [PayloadSize]byte
		return empty, ErrUnknownEffectType
	}

	w.WriteField(uint32(e.EffectType), 8)
	w.WriteField(uint32(CommandTypeEffect), 7)
	w.WriteField(1, 1)

	return w.Bytes(), nil
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
