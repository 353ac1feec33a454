package recall

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// assertf reports an invariant violation. Debug builds panic.
func assertf(logger logrus.FieldLogger, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if debug {
		panic("recall: " + msg)
	}
	logger.Error("invariant violated: " + msg)
}
