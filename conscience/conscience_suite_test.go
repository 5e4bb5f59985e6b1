package conscience

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestConscience(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Conscience Suite")
}
