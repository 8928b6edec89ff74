package bagel

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"

	bin "github.com/bagel-payroll/bagel-server/pkg/solana/binary"
)

var ErrUnknownEvent = errors.New("unknown event")

// EventLogPrefix prefixes base64 encoded events in program logs.
const EventLogPrefix = "Program data: "

// Event is emitted by the payroll program. Events carry indices, flags and
// timestamps only, never amounts or public keys.
type Event interface {
	Name() string

	encode(w *eventWriter)
	decode(r *eventReader)
}

type VaultInitialized struct {
	Timestamp int64
}

type BusinessRegistered struct {
	EntryIndex uint64
	Timestamp  int64
}

type FundsDeposited struct {
	EntryIndex uint64
	Timestamp  int64
}

type EmployeeAdded struct {
	BusinessIndex uint64
	EmployeeIndex uint64
	Timestamp     int64
}

type SalaryAccrued struct {
	BusinessIndex  uint64
	EmployeeIndex  uint64
	ElapsedSeconds uint64
	Timestamp      int64
}

type WithdrawalProcessed struct {
	BusinessIndex     uint64
	EmployeeIndex     uint64
	Timestamp         int64
	ShadowwireEnabled bool
}

type DelegatedToTee struct {
	BusinessIndex uint64
	EmployeeIndex uint64
	Timestamp     int64
}

type CommittedFromTee struct {
	BusinessIndex uint64
	EmployeeIndex uint64
	Undelegated   bool
	Timestamp     int64
}

type ConfidentialMintConfigured struct {
	Enabled   bool
	Timestamp int64
}

type VaultMigrated struct {
	PreviousSize uint64
	Timestamp    int64
}

type VaultActiveChanged struct {
	IsActive  bool
	Timestamp int64
}

type BusinessActiveChanged struct {
	BusinessIndex uint64
	IsActive      bool
	Timestamp     int64
}

type EmployeeDeactivated struct {
	BusinessIndex uint64
	EmployeeIndex uint64
	Timestamp     int64
}

func (*VaultInitialized) Name() string           { return "VaultInitialized" }
func (*BusinessRegistered) Name() string         { return "BusinessRegistered" }
func (*FundsDeposited) Name() string             { return "FundsDeposited" }
func (*EmployeeAdded) Name() string              { return "EmployeeAdded" }
func (*SalaryAccrued) Name() string              { return "SalaryAccrued" }
func (*WithdrawalProcessed) Name() string        { return "WithdrawalProcessed" }
func (*DelegatedToTee) Name() string             { return "DelegatedToTee" }
func (*CommittedFromTee) Name() string           { return "CommittedFromTee" }
func (*ConfidentialMintConfigured) Name() string { return "ConfidentialMintConfigured" }
func (*VaultMigrated) Name() string              { return "VaultMigrated" }
func (*VaultActiveChanged) Name() string         { return "VaultActiveChanged" }
func (*BusinessActiveChanged) Name() string      { return "BusinessActiveChanged" }
func (*EmployeeDeactivated) Name() string        { return "EmployeeDeactivated" }

func (e *VaultInitialized) encode(w *eventWriter) { w.writeInt64(e.Timestamp) }
func (e *VaultInitialized) decode(r *eventReader) { e.Timestamp = r.readInt64() }

func (e *BusinessRegistered) encode(w *eventWriter) {
	w.writeUint64(e.EntryIndex)
	w.writeInt64(e.Timestamp)
}

func (e *BusinessRegistered) decode(r *eventReader) {
	e.EntryIndex = r.readUint64()
	e.Timestamp = r.readInt64()
}

func (e *FundsDeposited) encode(w *eventWriter) {
	w.writeUint64(e.EntryIndex)
	w.writeInt64(e.Timestamp)
}

func (e *FundsDeposited) decode(r *eventReader) {
	e.EntryIndex = r.readUint64()
	e.Timestamp = r.readInt64()
}

func (e *EmployeeAdded) encode(w *eventWriter) {
	w.writeUint64(e.BusinessIndex)
	w.writeUint64(e.EmployeeIndex)
	w.writeInt64(e.Timestamp)
}

func (e *EmployeeAdded) decode(r *eventReader) {
	e.BusinessIndex = r.readUint64()
	e.EmployeeIndex = r.readUint64()
	e.Timestamp = r.readInt64()
}

func (e *SalaryAccrued) encode(w *eventWriter) {
	w.writeUint64(e.BusinessIndex)
	w.writeUint64(e.EmployeeIndex)
	w.writeUint64(e.ElapsedSeconds)
	w.writeInt64(e.Timestamp)
}

func (e *SalaryAccrued) decode(r *eventReader) {
	e.BusinessIndex = r.readUint64()
	e.EmployeeIndex = r.readUint64()
	e.ElapsedSeconds = r.readUint64()
	e.Timestamp = r.readInt64()
}

func (e *WithdrawalProcessed) encode(w *eventWriter) {
	w.writeUint64(e.BusinessIndex)
	w.writeUint64(e.EmployeeIndex)
	w.writeInt64(e.Timestamp)
	w.writeBool(e.ShadowwireEnabled)
}

func (e *WithdrawalProcessed) decode(r *eventReader) {
	e.BusinessIndex = r.readUint64()
	e.EmployeeIndex = r.readUint64()
	e.Timestamp = r.readInt64()
	e.ShadowwireEnabled = r.readBool()
}

func (e *DelegatedToTee) encode(w *eventWriter) {
	w.writeUint64(e.BusinessIndex)
	w.writeUint64(e.EmployeeIndex)
	w.writeInt64(e.Timestamp)
}

func (e *DelegatedToTee) decode(r *eventReader) {
	e.BusinessIndex = r.readUint64()
	e.EmployeeIndex = r.readUint64()
	e.Timestamp = r.readInt64()
}

func (e *CommittedFromTee) encode(w *eventWriter) {
	w.writeUint64(e.BusinessIndex)
	w.writeUint64(e.EmployeeIndex)
	w.writeBool(e.Undelegated)
	w.writeInt64(e.Timestamp)
}

func (e *CommittedFromTee) decode(r *eventReader) {
	e.BusinessIndex = r.readUint64()
	e.EmployeeIndex = r.readUint64()
	e.Undelegated = r.readBool()
	e.Timestamp = r.readInt64()
}

func (e *ConfidentialMintConfigured) encode(w *eventWriter) {
	w.writeBool(e.Enabled)
	w.writeInt64(e.Timestamp)
}

func (e *ConfidentialMintConfigured) decode(r *eventReader) {
	e.Enabled = r.readBool()
	e.Timestamp = r.readInt64()
}

func (e *VaultMigrated) encode(w *eventWriter) {
	w.writeUint64(e.PreviousSize)
	w.writeInt64(e.Timestamp)
}

func (e *VaultMigrated) decode(r *eventReader) {
	e.PreviousSize = r.readUint64()
	e.Timestamp = r.readInt64()
}

func (e *VaultActiveChanged) encode(w *eventWriter) {
	w.writeBool(e.IsActive)
	w.writeInt64(e.Timestamp)
}

func (e *VaultActiveChanged) decode(r *eventReader) {
	e.IsActive = r.readBool()
	e.Timestamp = r.readInt64()
}

func (e *BusinessActiveChanged) encode(w *eventWriter) {
	w.writeUint64(e.BusinessIndex)
	w.writeBool(e.IsActive)
	w.writeInt64(e.Timestamp)
}

func (e *BusinessActiveChanged) decode(r *eventReader) {
	e.BusinessIndex = r.readUint64()
	e.IsActive = r.readBool()
	e.Timestamp = r.readInt64()
}

func (e *EmployeeDeactivated) encode(w *eventWriter) {
	w.writeUint64(e.BusinessIndex)
	w.writeUint64(e.EmployeeIndex)
	w.writeInt64(e.Timestamp)
}

func (e *EmployeeDeactivated) decode(r *eventReader) {
	e.BusinessIndex = r.readUint64()
	e.EmployeeIndex = r.readUint64()
	e.Timestamp = r.readInt64()
}

func newEventByName(name string) Event {
	switch name {
	case "VaultInitialized":
		return &VaultInitialized{}
	case "BusinessRegistered":
		return &BusinessRegistered{}
	case "FundsDeposited":
		return &FundsDeposited{}
	case "EmployeeAdded":
		return &EmployeeAdded{}
	case "SalaryAccrued":
		return &SalaryAccrued{}
	case "WithdrawalProcessed":
		return &WithdrawalProcessed{}
	case "DelegatedToTee":
		return &DelegatedToTee{}
	case "CommittedFromTee":
		return &CommittedFromTee{}
	case "ConfidentialMintConfigured":
		return &ConfidentialMintConfigured{}
	case "VaultMigrated":
		return &VaultMigrated{}
	case "VaultActiveChanged":
		return &VaultActiveChanged{}
	case "BusinessActiveChanged":
		return &BusinessActiveChanged{}
	case "EmployeeDeactivated":
		return &EmployeeDeactivated{}
	}
	return nil
}

var eventsByDiscriminator = func() map[string]string {
	res := make(map[string]string)
	for _, name := range []string{
		"VaultInitialized",
		"BusinessRegistered",
		"FundsDeposited",
		"EmployeeAdded",
		"SalaryAccrued",
		"WithdrawalProcessed",
		"DelegatedToTee",
		"CommittedFromTee",
		"ConfidentialMintConfigured",
		"VaultMigrated",
		"VaultActiveChanged",
		"BusinessActiveChanged",
		"EmployeeDeactivated",
	} {
		res[string(bin.EventDiscriminator(name))] = name
	}
	return res
}()

// MarshalEvent encodes an event as its discriminator followed by its fields.
func MarshalEvent(e Event) []byte {
	w := &eventWriter{}
	w.buf.Write(bin.EventDiscriminator(e.Name()))
	e.encode(w)
	return w.buf.Bytes()
}

// EventLog formats an event the way it appears in program logs.
func EventLog(e Event) string {
	return EventLogPrefix + base64.StdEncoding.EncodeToString(MarshalEvent(e))
}

func UnmarshalEvent(data []byte) (Event, error) {
	if len(data) < bin.DiscriminatorSize {
		return nil, ErrUnknownEvent
	}

	name, ok := eventsByDiscriminator[string(data[:bin.DiscriminatorSize])]
	if !ok {
		return nil, ErrUnknownEvent
	}

	e := newEventByName(name)
	r := &eventReader{src: data[bin.DiscriminatorSize:]}
	e.decode(r)
	if r.err != nil || len(r.src) != 0 {
		return nil, ErrInvalidAccountData
	}
	return e, nil
}

// ParseEventsFromLogs extracts every payroll event from a transaction's logs.
// Lines that aren't payroll events are skipped.
func ParseEventsFromLogs(logs []string) []Event {
	var res []Event
	for _, line := range logs {
		if !strings.HasPrefix(line, EventLogPrefix) {
			continue
		}

		data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, EventLogPrefix))
		if err != nil {
			continue
		}

		e, err := UnmarshalEvent(data)
		if err != nil {
			continue
		}
		res = append(res, e)
	}
	return res
}

type eventWriter struct {
	buf bytes.Buffer
}

func (w *eventWriter) writeUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *eventWriter) writeInt64(v int64) {
	w.writeUint64(uint64(v))
}

func (w *eventWriter) writeBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

type eventReader struct {
	src []byte
	err error
}

func (r *eventReader) readUint64() uint64 {
	if len(r.src) < 8 {
		r.err = bin.ErrShortBuffer
		r.src = nil
		return 0
	}
	v := binary.LittleEndian.Uint64(r.src)
	r.src = r.src[8:]
	return v
}

func (r *eventReader) readInt64() int64 {
	return int64(r.readUint64())
}

func (r *eventReader) readBool() bool {
	if len(r.src) < 1 {
		r.err = bin.ErrShortBuffer
		return false
	}
	v := r.src[0] != 0
	r.src = r.src[1:]
	return v
}
