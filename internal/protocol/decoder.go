// Package protocol implements the scene server's application-layer
// decoder: a zstd-compressed, opcode-tagged record stream that gets
// translated into gameevent.Events for the combat engine.
//
// The registry shape mirrors decoder/gopacketDecoder.go's
// defaultGoPacketDecoders/InitGoPacketDecoders: descriptors with Handler
// functions, registered once at startup in a map keyed by opcode. The opcode
// catalogue itself is game-owned data, the same way that file's own
// protocol table is out of scope for the design; only a handful of
// representative handlers are wired here.
package protocol

import (
	"encoding/binary"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kar-mi/bpsr-combat-telemetry/internal/gameevent"
)

// Opcode identifies a decoded record's payload shape.
type Opcode uint16

// Opcodes below are placeholders for the game-owned catalogue; a real
// deployment supplies its own table matching the live protocol version.
const (
	OpDamage     Opcode = 0x0001
	OpHealing    Opcode = 0x0002
	OpEntityAttr Opcode = 0x0003
	OpDeath      Opcode = 0x0004
)

// handler decodes one opcode's record body into zero or more events.
type handler func(body []byte) ([]gameevent.Event, error)

// descriptor pairs an opcode with its handler and a human-readable name
// for logging, the same Description/Handler shape as GoPacketDecoder.
type descriptor struct {
	Opcode      Opcode
	Description string
	Handler     handler
}

var errShortRecord = errors.New("record too short")

// Decoder implements gameevent.Decoder. It decompresses each frame body
// with zstd, then dispatches the decompressed record by its leading
// 2-byte opcode to a registered handler.
type Decoder struct {
	zr        *zstd.Decoder
	table     map[Opcode]descriptor
	log       *zap.Logger
	strictLen bool
}

// New constructs a Decoder. It is fatal-on-construction if zstd support
// is unavailable, mirroring gopacketDecoder.go's log.Fatal calls on
// unrecoverable init failures — here surfaced as a returned error so the
// composition root decides how to fail.
func New(log *zap.Logger) (*Decoder, error) {
	if log == nil {
		log = zap.NewNop()
	}

	zr, err := gameevent.RequireZstd()
	if err != nil {
		return nil, errors.Wrap(err, "initialize packet decoder")
	}

	d := &Decoder{zr: zr, table: make(map[Opcode]descriptor), log: log.Named("protocol")}

	d.register(OpDamage, "Damage", d.decodeDamage)
	d.register(OpHealing, "Healing", d.decodeHealing)
	d.register(OpEntityAttr, "EntityAttr", d.decodeEntityAttr)
	d.register(OpDeath, "Death", d.decodeDeath)

	d.log.Info("initialized packet decoders", zap.Int("total", len(d.table)))

	return d, nil
}

func (d *Decoder) register(op Opcode, desc string, h handler) {
	d.table[op] = descriptor{Opcode: op, Description: desc, Handler: h}
}

// Decode implements gameevent.Decoder.
func (d *Decoder) Decode(frameBody []byte) ([]gameevent.Event, error) {
	raw, err := d.zr.DecodeAll(frameBody, nil)
	if err != nil {
		return nil, errors.Wrap(err, "zstd decompress frame body")
	}

	if len(raw) < 2 {
		return nil, errShortRecord
	}

	op := Opcode(binary.BigEndian.Uint16(raw[:2]))

	desc, ok := d.table[op]
	if !ok {
		d.log.Debug("no handler for opcode, skipping", zap.Uint16("opcode", uint16(op)))

		return nil, nil
	}

	events, err := desc.Handler(raw[2:])
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s record", desc.Description)
	}

	return events, nil
}

// record layout (all big-endian, following the length-prefixed framing
// convention already used by frame.Splitter and flowrouter's signatures):
//
//	damage:      attacker_uid(8) target_uid(8) target_kind(1) skill_id(4)
//	             damage(8) flags(1) hp_lessen(8)
//	healing:     healer_uid(8) target_uid(8) skill_id(4) healing(8) flags(1)
//	entity_attr: entity_id(8) kind(1) key(1) value(8)
//	death:       victim_id(8) killer_id(8)
//
// flags bit0=is_crit bit1=is_lucky bit2=is_cause_lucky bit3=lethal.

const (
	flagCrit = 1 << iota
	flagLucky
	flagCauseLucky
	flagLethal
)

func (d *Decoder) decodeDamage(body []byte) ([]gameevent.Event, error) {
	const want = 8 + 8 + 1 + 4 + 8 + 1 + 8
	if len(body) < want {
		return nil, errShortRecord
	}

	flags := body[29]

	ev := gameevent.Damage{
		AttackerUID:  binary.BigEndian.Uint64(body[0:8]),
		TargetUID:    binary.BigEndian.Uint64(body[8:16]),
		TargetKind:   gameevent.EntityKind(body[16]),
		SkillID:      binary.BigEndian.Uint32(body[17:21]),
		Damage:       int64(binary.BigEndian.Uint64(body[21:29])), //nolint:gosec
		IsCrit:       flags&flagCrit != 0,
		IsLucky:      flags&flagLucky != 0,
		IsCauseLucky: flags&flagCauseLucky != 0,
		Lethal:       flags&flagLethal != 0,
		HPLessen:     int64(binary.BigEndian.Uint64(body[30:38])), //nolint:gosec
	}

	return []gameevent.Event{{Kind: gameevent.KindDamage, Damage: &ev}}, nil
}

func (d *Decoder) decodeHealing(body []byte) ([]gameevent.Event, error) {
	const want = 8 + 8 + 4 + 8 + 1
	if len(body) < want {
		return nil, errShortRecord
	}

	flags := body[28]

	ev := gameevent.Healing{
		HealerUID:    binary.BigEndian.Uint64(body[0:8]),
		TargetUID:    binary.BigEndian.Uint64(body[8:16]),
		SkillID:      binary.BigEndian.Uint32(body[16:20]),
		Healing:      int64(binary.BigEndian.Uint64(body[20:28])), //nolint:gosec
		IsCrit:       flags&flagCrit != 0,
		IsLucky:      flags&flagLucky != 0,
		IsCauseLucky: flags&flagCauseLucky != 0,
	}

	return []gameevent.Event{{Kind: gameevent.KindHealing, Healing: &ev}}, nil
}

func (d *Decoder) decodeEntityAttr(body []byte) ([]gameevent.Event, error) {
	const want = 8 + 1 + 1 + 8
	if len(body) < want {
		return nil, errShortRecord
	}

	ev := gameevent.EntityAttr{
		EntityID: binary.BigEndian.Uint64(body[0:8]),
		Kind:     gameevent.EntityKind(body[8]),
		Key:      gameevent.AttrKey(body[9]),
		Value:    int64(binary.BigEndian.Uint64(body[10:18])), //nolint:gosec
	}

	return []gameevent.Event{{Kind: gameevent.KindEntityAttr, Attr: &ev}}, nil
}

func (d *Decoder) decodeDeath(body []byte) ([]gameevent.Event, error) {
	const want = 8 + 8
	if len(body) < want {
		return nil, errShortRecord
	}

	ev := gameevent.Death{
		VictimID: binary.BigEndian.Uint64(body[0:8]),
		KillerID: binary.BigEndian.Uint64(body[8:16]),
	}

	return []gameevent.Event{{Kind: gameevent.KindDeath, Death: &ev}}, nil
}
