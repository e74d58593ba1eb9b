package ir

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/cockroachdb/errors"
)

// Domain prefixes for content-addressed hashes.
// The version suffix allows the algorithm to change later.
const (
	DomainPlan   = "loadplan/plan/v1"
	DomainRender = "loadplan/render/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PlanHash returns the content hash of a select tree snapshot.
// Equal trees produce equal hashes regardless of map iteration order.
func PlanHash(n *SelectNode) (string, error) {
	canonical, err := MarshalCanonical(n.Snapshot())
	if err != nil {
		return "", errors.Wrap(err, "PlanHash: marshal")
	}
	return hashWithDomain(DomainPlan, canonical), nil
}

// RenderHash returns the content hash of rendered output.
func RenderHash(v IRValue) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", errors.Wrap(err, "RenderHash: marshal")
	}
	return hashWithDomain(DomainRender, canonical), nil
}

// MustPlanHash is like PlanHash but panics on error.
// Use only in tests.
func MustPlanHash(n *SelectNode) string {
	h, err := PlanHash(n)
	if err != nil {
		panic(err)
	}
	return h
}
