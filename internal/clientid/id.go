package clientid

import (
	"crypto/sha1"
	"encoding/base32"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Len is the length of every generated id.
const Len = 32

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Generator produces client order ids.
type Generator interface {
	Generate() string
}

// Digest hashes the wall clock and a random nonce. The result uses only
// [A-Z2-7], so it is safe as a map key and as a wire token on every venue
// that accepts 36 alphanumeric characters.
type Digest struct {
	now   func() time.Time
	nonce func() uuid.UUID
}

func New() *Digest {
	return &Digest{
		now:   time.Now,
		nonce: uuid.New,
	}
}

func (d *Digest) Generate() string {
	nonce := d.nonce()

	buf := make([]byte, 0, 20+len(nonce))
	buf = strconv.AppendInt(buf, d.now().UnixNano(), 10)
	buf = append(buf, nonce[:]...)

	sum := sha1.Sum(buf)
	return encoding.EncodeToString(sum[:])
}

// Generate returns an id from a process-wide Digest.
func Generate() string {
	return defaultDigest.Generate()
}

var defaultDigest = New()
