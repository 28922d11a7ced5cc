// Package auditnl implements the NETLINK_AUDIT family: status get/set
// messages and rule add/list messages, supplementing the distilled spec
// (which only names "audit" as a family in passing) from
// original_source/netlink-packet-audit's rule field/flag model and the
// kernel's well-known audit_status/audit_rule_data layouts.
package auditnl

import (
	"fmt"

	"github.com/mdlayher/gonl/nlenc"
)

// AUDIT_* message types (linux/audit.h).
const (
	AUDIT_GET          = 1000
	AUDIT_SET          = 1001
	AUDIT_LIST_RULES   = 1013
	AUDIT_ADD_RULE     = 1011
	AUDIT_DEL_RULE     = 1012
)

// AUDIT_STATUS_* field-present bitmask values for Status.Mask.
const (
	AUDIT_STATUS_ENABLED          = 1 << 0
	AUDIT_STATUS_FAILURE          = 1 << 1
	AUDIT_STATUS_PID              = 1 << 2
	AUDIT_STATUS_RATE_LIMIT       = 1 << 3
	AUDIT_STATUS_BACKLOG_LIMIT    = 1 << 4
	AUDIT_STATUS_BACKLOG_WAIT_TIME = 1 << 5
	AUDIT_STATUS_LOST             = 1 << 6
)

// statusLen is sizeof(struct audit_status): nine native-endian uint32
// fields. Every field is host-native, unlike the attribute-bearing
// families above — audit predates netlink attributes entirely and still
// uses a flat fixed struct for its control plane.
const statusLen = 9 * 4

// Status is struct audit_status: the kernel audit subsystem's global
// enable/pid/rate-limit state, read with AUDIT_GET and written with
// AUDIT_SET (only the fields named in Mask are applied on a Set).
type Status struct {
	Mask            uint32
	Enabled         uint32
	Failure         uint32
	PID             uint32
	RateLimit       uint32
	BacklogLimit    uint32
	Lost            uint32
	Backlog         uint32
	BacklogWaitTime uint32
}

// ParseStatus decodes an AUDIT_GET reply body.
func ParseStatus(body []byte) (Status, error) {
	if len(body) < statusLen {
		return Status{}, fmt.Errorf("auditnl: status: short message: %d bytes", len(body))
	}
	return Status{
		Mask:            nlenc.Uint32(body[0:4]),
		Enabled:         nlenc.Uint32(body[4:8]),
		Failure:         nlenc.Uint32(body[8:12]),
		PID:             nlenc.Uint32(body[12:16]),
		RateLimit:       nlenc.Uint32(body[16:20]),
		BacklogLimit:    nlenc.Uint32(body[20:24]),
		Lost:            nlenc.Uint32(body[24:28]),
		Backlog:         nlenc.Uint32(body[28:32]),
		BacklogWaitTime: nlenc.Uint32(body[32:36]),
	}, nil
}

// EmitStatus encodes an AUDIT_SET request body. Only fields flagged in
// Mask are meaningful to the kernel; callers building a request should set
// Mask to exactly the fields they intend to change.
func EmitStatus(s Status) []byte {
	b := make([]byte, statusLen)
	nlenc.PutUint32(b[0:4], s.Mask)
	nlenc.PutUint32(b[4:8], s.Enabled)
	nlenc.PutUint32(b[8:12], s.Failure)
	nlenc.PutUint32(b[12:16], s.PID)
	nlenc.PutUint32(b[16:20], s.RateLimit)
	nlenc.PutUint32(b[20:24], s.BacklogLimit)
	nlenc.PutUint32(b[24:28], s.Lost)
	nlenc.PutUint32(b[28:32], s.Backlog)
	nlenc.PutUint32(b[32:36], s.BacklogWaitTime)
	return b
}

// RuleFieldFlag is a comparison operator attached to one rule field
// condition, following netlink-packet-audit's RuleFieldFlags enum
// (rules/field.rs).
type RuleFieldFlag uint32

const (
	RuleFieldBitMask            RuleFieldFlag = 0x08000000
	RuleFieldBitTest            RuleFieldFlag = 0x48000000
	RuleFieldLessThan           RuleFieldFlag = 0x10000000
	RuleFieldGreaterThan        RuleFieldFlag = 0x20000000
	RuleFieldNotEqual           RuleFieldFlag = 0x30000000
	RuleFieldEqual              RuleFieldFlag = 0x40000000
	RuleFieldLessThanOrEqual    RuleFieldFlag = 0x50000000
	RuleFieldGreaterThanOrEqual RuleFieldFlag = 0x60000000
)

// RuleField is one field/op/value condition of an audit rule, the Go
// rendering of netlink-packet-audit's RuleField enum collapsed to its
// (kind, flag, value) triple rather than one Rust enum variant per field
// name — Go has no sum type to mirror that enumeration directly, and this
// package only needs the wire triple to round-trip rules, not a field-name
// taxonomy.
type RuleField struct {
	Kind  uint32
	Flag  RuleFieldFlag
	Value uint32
}

// ruleDataLen is sizeof(struct audit_rule_data) up to (but excluding) the
// variable-length buf[] trailer: flags, action, field_count, then four
// arrays of AUDIT_MAX_FIELDS(64) uint32 each (syscall mask, fields, values,
// fieldflags). The kernel's buflen word is not included.
const (
	maxFields   = 64
	ruleDataLen = 4 + 4 + 4 + maxFields*4*4
)

// Rule is struct audit_rule_data: an audit filter rule, its syscall
// bitmask, and its field conditions. Watch is written directly after the
// fixed fields as a NUL-terminated string and read back the same way,
// rather than through the kernel's buflen-sized buf[]. Key is neither
// emitted nor parsed.
type Rule struct {
	Flags    uint32
	Action   uint32
	Syscalls [maxFields]uint32 // bitmask, 32 bits per word
	Fields   []RuleField
	Watch    string
	Key      string
}

// ParseRule decodes an AUDIT_LIST_RULES reply body (or an AUDIT_ADD_RULE
// request body).
func ParseRule(body []byte) (Rule, error) {
	if len(body) < ruleDataLen {
		return Rule{}, fmt.Errorf("auditnl: rule: short message: %d bytes", len(body))
	}
	var r Rule
	r.Flags = nlenc.Uint32(body[0:4])
	r.Action = nlenc.Uint32(body[4:8])
	fieldCount := nlenc.Uint32(body[8:12])
	if fieldCount > maxFields {
		return Rule{}, fmt.Errorf("auditnl: rule: field count %d exceeds max %d", fieldCount, maxFields)
	}

	off := 12
	var mask [maxFields]uint32
	for i := range mask {
		mask[i] = nlenc.Uint32(body[off : off+4])
		off += 4
	}
	r.Syscalls = mask

	var kinds, flags, values [maxFields]uint32
	for i := range kinds {
		kinds[i] = nlenc.Uint32(body[off : off+4])
		off += 4
	}
	for i := range values {
		values[i] = nlenc.Uint32(body[off : off+4])
		off += 4
	}
	for i := range flags {
		flags[i] = nlenc.Uint32(body[off : off+4])
		off += 4
	}
	for i := uint32(0); i < fieldCount; i++ {
		r.Fields = append(r.Fields, RuleField{Kind: kinds[i], Flag: RuleFieldFlag(flags[i]), Value: values[i]})
	}

	if len(body) > off {
		trailer := body[off:]
		if watchLen := len(r.Watch); watchLen == 0 && len(trailer) > 0 {
			r.Watch = nlenc.String(trailer)
		}
	}
	return r, nil
}

// EmitRule encodes a Rule into an AUDIT_ADD_RULE request body.
func EmitRule(r Rule) []byte {
	b := make([]byte, ruleDataLen)
	nlenc.PutUint32(b[0:4], r.Flags)
	nlenc.PutUint32(b[4:8], r.Action)
	nlenc.PutUint32(b[8:12], uint32(len(r.Fields)))

	off := 12
	for _, word := range r.Syscalls {
		nlenc.PutUint32(b[off:off+4], word)
		off += 4
	}

	var kinds, flags, values [maxFields]uint32
	for i, f := range r.Fields {
		kinds[i] = f.Kind
		flags[i] = uint32(f.Flag)
		values[i] = f.Value
	}
	for _, v := range kinds {
		nlenc.PutUint32(b[off:off+4], v)
		off += 4
	}
	for _, v := range values {
		nlenc.PutUint32(b[off:off+4], v)
		off += 4
	}
	for _, v := range flags {
		nlenc.PutUint32(b[off:off+4], v)
		off += 4
	}

	if r.Watch != "" {
		b = append(b, append([]byte(r.Watch), 0)...)
	}
	return b
}
