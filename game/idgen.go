package game

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math/bits"
	"sync"
	"time"
)

var ErrInvalidRoomID = errors.New("invalid-room-id")

// IdGen hands out room ids: the creation time in milliseconds, bumped forward
// while the value is taken.
type IdGen struct {
	ids    map[int64]struct{}
	now    func() time.Time
	locker sync.Mutex
}

func NewIdGen() *IdGen {
	return &IdGen{ids: make(map[int64]struct{}), now: time.Now}
}

func (g *IdGen) Generate() int64 {
	g.locker.Lock()
	defer g.locker.Unlock()

	id := g.now().UnixMilli()
	for {
		if _, taken := g.ids[id]; !taken {
			break
		}
		id++
	}
	g.ids[id] = struct{}{}
	return id
}

func (g *IdGen) Dispose(id int64) {
	g.locker.Lock()
	delete(g.ids, id)
	g.locker.Unlock()
}

// EncodeID renders id as url-safe base64 of its minimal big-endian two's
// complement bytes, keeping one spare bit for the sign.
func EncodeID(id int64) string {
	var n int
	if id >= 0 {
		n = bits.Len64(uint64(id))/8 + 1
	} else {
		n = bits.Len64(uint64(^id))/8 + 1
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	return base64.URLEncoding.EncodeToString(buf[8-min(n, 8):])
}

func DecodeID(encoded string) (int64, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil || len(raw) == 0 || len(raw) > 8 {
		return 0, ErrInvalidRoomID
	}

	var buf [8]byte
	if raw[0]&0x80 != 0 {
		for i := range buf {
			buf[i] = 0xff
		}
	}
	copy(buf[8-len(raw):], raw)
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}
