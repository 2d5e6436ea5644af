package wsconn_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestWsconn(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "wsconn Suite")
}
