// Package e2e_test holds the Given/When/Then behavioral specs for
// spec.md §8's end-to-end scenarios (S1-S7), a ginkgo/gomega layer
// alongside the teacher-style testify unit tests in every internal/
// package, grounded on sarchlab/m2sim's own ginkgo+gomega suite.
package e2e_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestE2E(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "End-to-end scenario suite")
}
