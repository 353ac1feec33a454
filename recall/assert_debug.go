//go:build sequencerdebug

package recall

const debug = true
