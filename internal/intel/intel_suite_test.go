package intel_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestIntel(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Intel Suite")
}
