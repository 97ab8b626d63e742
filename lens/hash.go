package lens

import (
	"github.com/benbjohnson/immutable"
	"github.com/cottand/hmerge/program"
	"github.com/zeebo/xxh3"
)

// stringHasher hashes any comparable key through its string form.
type stringHasher[K comparable] struct {
	str func(K) string
}

func (h stringHasher[K]) Hash(key K) uint32 {
	sum := xxh3.HashString(h.str(key))
	return uint32(sum ^ sum>>32)
}

func (h stringHasher[K]) Equal(a, b K) bool { return a == b }

var (
	typeHasher immutable.Hasher[program.Type] = stringHasher[program.Type]{
		str: func(t program.Type) string { return string(t) },
	}
	methodHasher immutable.Hasher[program.MethodRef] = stringHasher[program.MethodRef]{
		str: program.MethodRef.String,
	}
	fieldHasher immutable.Hasher[program.FieldRef] = stringHasher[program.FieldRef]{
		str: program.FieldRef.String,
	}
)
