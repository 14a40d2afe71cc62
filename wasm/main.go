//go:build wasm

package main

import (
	"syscall/js"
)

func main() {
	js.Global().Set("ScanrtNewScanner", js.FuncOf(newScanner))
	js.Global().Set("ScanrtScan", js.FuncOf(scanContent))
	js.Global().Set("ScanrtScanBatch", js.FuncOf(scanBatch))
	js.Global().Set("ScanrtOpenStream", js.FuncOf(openStream))
	js.Global().Set("ScanrtWriteStream", js.FuncOf(writeStream))
	js.Global().Set("ScanrtCloseStream", js.FuncOf(closeStream))
	js.Global().Set("ScanrtCloseScanner", js.FuncOf(closeScanner))
	js.Global().Set("ScanrtBuiltinPatterns", js.FuncOf(builtinPatterns))

	<-make(chan struct{})
}
