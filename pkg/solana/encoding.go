package solana

import (
	"bytes"
	"crypto/ed25519"
	"io"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/bagel-payroll/bagel-server/pkg/solana/shortvec"
)

// ToBase58 encodes the signature the way the RPC api presents it.
func (s Signature) ToBase58() string {
	return base58.Encode(s[:])
}

// Marshal returns the wire encoding: compact signature array followed by the
// message.
func (t Transaction) Marshal() []byte {
	var w wireWriter
	w.length(len(t.Signatures))
	for _, sig := range t.Signatures {
		w.raw(sig[:])
	}
	w.raw(t.Message.Marshal())
	return w.Bytes()
}

func (t *Transaction) Unmarshal(b []byte) error {
	r := newWireReader(b)

	t.Signatures = make([]Signature, r.length("signatures"))
	for i := range t.Signatures {
		r.fill(t.Signatures[i][:], "signature")
	}
	if r.err != nil {
		return r.err
	}

	return t.Message.Unmarshal(r.remaining())
}

// Marshal returns the legacy message encoding that signatures are taken over.
func (m Message) Marshal() []byte {
	var w wireWriter
	w.raw([]byte{m.Header.NumSignatures, m.Header.NumReadonlySigned, m.Header.NumReadOnly})

	w.length(len(m.Accounts))
	for _, account := range m.Accounts {
		var key [ed25519.PublicKeySize]byte
		copy(key[:], account)
		w.raw(key[:])
	}

	w.raw(m.RecentBlockhash[:])

	w.length(len(m.Instructions))
	for _, ix := range m.Instructions {
		w.raw([]byte{ix.ProgramIndex})
		w.prefixed(ix.Accounts)
		w.prefixed(ix.Data)
	}
	return w.Bytes()
}

// Unmarshal decodes a legacy message. Versioned messages, index references
// outside the account list, and trailing bytes are rejected.
func (m *Message) Unmarshal(b []byte) error {
	if len(b) > 0 && b[0]&0x80 != 0 {
		return errors.New("versioned messages not supported")
	}

	r := newWireReader(b)

	header := make([]byte, 3)
	r.fill(header, "header")
	m.Header = Header{
		NumSignatures:     header[0],
		NumReadonlySigned: header[1],
		NumReadOnly:       header[2],
	}

	m.Accounts = make([]ed25519.PublicKey, r.length("accounts"))
	for i := range m.Accounts {
		m.Accounts[i] = make(ed25519.PublicKey, ed25519.PublicKeySize)
		r.fill(m.Accounts[i], "account")
	}

	r.fill(m.RecentBlockhash[:], "recent blockhash")

	m.Instructions = make([]CompiledInstruction, r.length("instructions"))
	for i := range m.Instructions {
		programIndex := make([]byte, 1)
		r.fill(programIndex, "program index")

		m.Instructions[i] = CompiledInstruction{
			ProgramIndex: programIndex[0],
			Accounts:     r.prefixed("instruction accounts"),
			Data:         r.prefixed("instruction data"),
		}
	}

	if r.err != nil {
		return r.err
	}
	if len(r.remaining()) > 0 {
		return errors.Errorf("%d trailing bytes after message", len(r.remaining()))
	}

	for i, ix := range m.Instructions {
		if int(ix.ProgramIndex) >= len(m.Accounts) {
			return errors.Errorf("instruction %d: program index %d out of range", i, ix.ProgramIndex)
		}
		for _, index := range ix.Accounts {
			if int(index) >= len(m.Accounts) {
				return errors.Errorf("instruction %d: account index %d out of range", i, index)
			}
		}
	}
	return nil
}

type wireWriter struct {
	bytes.Buffer
}

func (w *wireWriter) length(n int) {
	// Lengths are bounded by the packet size and never overflow a shortvec
	_, _ = shortvec.EncodeLen(w, n)
}

func (w *wireWriter) raw(b []byte) {
	_, _ = w.Write(b)
}

func (w *wireWriter) prefixed(b []byte) {
	w.length(len(b))
	w.raw(b)
}

// wireReader decodes sequential fields. The first failure sticks and later
// reads become no-ops.
type wireReader struct {
	buf *bytes.Reader
	err error
}

func newWireReader(b []byte) *wireReader {
	return &wireReader{buf: bytes.NewReader(b)}
}

func (r *wireReader) length(field string) int {
	if r.err != nil {
		return 0
	}

	n, err := shortvec.DecodeLen(r.buf)
	if err != nil {
		r.err = errors.Wrapf(err, "invalid %s length", field)
		return 0
	}
	if n > r.buf.Len() {
		r.err = errors.Errorf("%s length %d exceeds remaining %d bytes", field, n, r.buf.Len())
		return 0
	}
	return n
}

func (r *wireReader) fill(dst []byte, field string) {
	if r.err != nil {
		return
	}
	if _, err := io.ReadFull(r.buf, dst); err != nil {
		r.err = errors.Wrapf(err, "failed to read %s", field)
	}
}

func (r *wireReader) prefixed(field string) []byte {
	b := make([]byte, r.length(field))
	r.fill(b, field)
	return b
}

func (r *wireReader) remaining() []byte {
	rest := make([]byte, r.buf.Len())
	_, _ = r.buf.Read(rest)
	return rest
}
