package service

import (
	"crypto/rand"
	"io"
	"math/big"
)

// ClassCodeAlphabet omits characters that are easy to confuse when read aloud (0/O, 1/I).
const ClassCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ClassCodeLength is the number of characters in a class code.
const ClassCodeLength = 6

const maxCodeAttempts = 5

// CodeGenerator produces candidate class codes.
type CodeGenerator func() (string, error)

// NewCodeGenerator draws codes from the given entropy source, or crypto/rand when nil.
func NewCodeGenerator(source io.Reader) CodeGenerator {
	if source == nil {
		source = rand.Reader
	}
	limit := big.NewInt(int64(len(ClassCodeAlphabet)))
	return func() (string, error) {
		code := make([]byte, ClassCodeLength)
		for i := range code {
			n, err := rand.Int(source, limit)
			if err != nil {
				return "", err
			}
			code[i] = ClassCodeAlphabet[n.Int64()]
		}
		return string(code), nil
	}
}
