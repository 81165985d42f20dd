package sidus

// CommandType is the Sidus application-layer command discriminator
// carried in every payload (the commandType field, 7 bits).
type CommandType int

const (
	CommandTypeHSI    CommandType = 1
	CommandTypeCCT    CommandType = 2
	CommandTypeEffect CommandType = 7
	CommandTypeSleep  CommandType = 12
)

// EffectType enumerates the Effect command's sub-variants (effectType,
// 8 bits, values 1-15).
type EffectType int

const (
	EffectPaparazzi   EffectType = 1
	EffectLightning   EffectType = 2
	EffectCandle      EffectType = 3
	EffectFire        EffectType = 4
	EffectTV          EffectType = 5
	EffectStrobe      EffectType = 6
	EffectExplosion   EffectType = 7
	EffectFaultyBulb  EffectType = 8
	EffectPulsing     EffectType = 9
	EffectWelding     EffectType = 10
	EffectCopCar      EffectType = 11
	EffectParty       EffectType = 13
	EffectFireworks   EffectType = 14
	EffectOff         EffectType = 15
)

// CCT is a correlated-color-temperature command: intensity and warm/cool
// white point, with an optional green/magenta tint.
type CCT struct {
	Intensity uint16 // 0-1000, 0.1% units
	CCT       uint16 // 180-2000, units of 10 K (so 440 == 4400 K)
	GM        uint8  // 0-200, green/magenta tint
	GMFlag    bool
	SleepMode bool
	AutoPatch bool
}

// HSI is a hue/saturation/intensity command with an independent white
// point, mirroring CCT's colour-temperature fields.
type HSI struct {
	Intensity uint16 // 0-1000
	Hue       uint16 // 0-360 degrees
	Sat       uint8  // 0-100 percent
	CCT       uint16 // 180-2000, units of 10 K
	GM        uint8
	GMFlag    bool
	SleepMode bool
	AutoPatch bool
}

// Sleep is the power on/off command (command type 12).
type Sleep struct {
	SleepMode bool // true = powered on, false = powered off
}

// Effect selects one of the built-in lighting effects. Only the fields
// relevant to EffectType are consulted when encoding; see encode.go for
// the per-type field layout.
type Effect struct {
	EffectType EffectType
	Intensity  uint16
	Frequency  uint8 // Frq, 4 bits
	CCT        uint16
	GM         uint8
	Colour     uint8 // CopCar: 4 bits
	Sat        uint8 // Party: 7 bits
	Hue        uint16
	Speed      uint8 // 4 bits
	Trigger    uint8 // 2 bits
	Min        uint8 // Welding: 7 bits
	Mode       uint8 // EffectMode: 4 bits (Strobe/Explosion)
}

// Command is the tagged union of everything the Sidus codec can encode
// or a Parse call can produce.
type Command struct {
	Type   CommandType
	CCT    *CCT
	HSI    *HSI
	Sleep  *Sleep
	Effect *Effect
}
