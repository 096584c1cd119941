package zet

// proc enumerates the Zadc procedures this package calls.  Every procedure
// takes the device type and DSP index as its first two arguments
type proc int

const (
	zOpen proc = iota
	zClose
	zGetVersion
	zGetNameDevice
	zGetSerialNumberDSP
	zGetTypeConnection

	zGetFreqADC
	zGetFreqDAC
	zSetFreqADC
	zSetFreqDAC
	zGetListFreqADC
	zGetListFreqDAC

	zGetWordsADC
	zGetWordsDAC
	zGetQuantityChannelADC
	zGetQuantityChannelDAC
	zGetNumberInputADC
	zGetNumberOutputDAC
	zGetInputADC
	zGetOutputDAC
	zSetInputADC
	zSetOutputDAC

	zGetDigitalResolChanADC
	zGetDigitalResolChanDAC
	zGetAmplifyADC
	zSetAmplifyADC
	zGetListAmplifyADC
	zGetAttenDAC
	zSetAttenDAC

	zGetInterruptADC
	zGetInterruptDAC
	zGetBufferADC
	zGetBufferDAC
	zRemBufferADC
	zRemBufferDAC
	zGetPointerADC
	zGetPointerDAC
	zStartADC
	zStartDAC
	zStopADC
	zStopDAC

	zGetQuantityChannelDigPort
	zGetDigInput
	zGetDigOutput
	zSetDigOutput
	zGetDigOutEnable
	zSetDigOutEnable

	numProcs
)

var procNames = [numProcs]string{
	zOpen:               "ZOpen",
	zClose:              "ZClose",
	zGetVersion:         "ZGetVersion",
	zGetNameDevice:      "ZGetNameDevice",
	zGetSerialNumberDSP: "ZGetSerialNumberDSP",
	zGetTypeConnection:  "ZGetTypeConnection",

	zGetFreqADC:     "ZGetFreqADC",
	zGetFreqDAC:     "ZGetFreqDAC",
	zSetFreqADC:     "ZSetFreqADC",
	zSetFreqDAC:     "ZSetFreqDAC",
	zGetListFreqADC: "ZGetListFreqADC",
	zGetListFreqDAC: "ZGetListFreqDAC",

	zGetWordsADC:           "ZGetWordsADC",
	zGetWordsDAC:           "ZGetWordsDAC",
	zGetQuantityChannelADC: "ZGetQuantityChannelADC",
	zGetQuantityChannelDAC: "ZGetQuantityChannelDAC",
	zGetNumberInputADC:     "ZGetNumberInputADC",
	zGetNumberOutputDAC:    "ZGetNumberOutputDAC",
	zGetInputADC:           "ZGetInputADC",
	zGetOutputDAC:          "ZGetOutputDAC",
	zSetInputADC:           "ZSetInputADC",
	zSetOutputDAC:          "ZSetOutputDAC",

	zGetDigitalResolChanADC: "ZGetDigitalResolChanADC",
	zGetDigitalResolChanDAC: "ZGetDigitalResolChanDAC",
	zGetAmplifyADC:          "ZGetAmplifyADC",
	zSetAmplifyADC:          "ZSetAmplifyADC",
	zGetListAmplifyADC:      "ZGetListAmplifyADC",
	zGetAttenDAC:            "ZGetAttenDAC",
	zSetAttenDAC:            "ZSetAttenDAC",

	zGetInterruptADC: "ZGetInterruptADC",
	zGetInterruptDAC: "ZGetInterruptDAC",
	zGetBufferADC:    "ZGetBufferADC",
	zGetBufferDAC:    "ZGetBufferDAC",
	zRemBufferADC:    "ZRemBufferADC",
	zRemBufferDAC:    "ZRemBufferDAC",
	zGetPointerADC:   "ZGetPointerADC",
	zGetPointerDAC:   "ZGetPointerDAC",
	zStartADC:        "ZStartADC",
	zStartDAC:        "ZStartDAC",
	zStopADC:         "ZStopADC",
	zStopDAC:         "ZStopDAC",

	zGetQuantityChannelDigPort: "ZGetQuantityChannelDigPort",
	zGetDigInput:               "ZGetDigInput",
	zGetDigOutput:              "ZGetDigOutput",
	zSetDigOutput:              "ZSetDigOutput",
	zGetDigOutEnable:           "ZGetDigOutEnable",
	zSetDigOutEnable:           "ZSetDigOutEnable",
}

func (p proc) String() string {
	if p < 0 || p >= numProcs {
		return "Z?"
	}
	return procNames[p]
}

// pathProcs selects the ADC or DAC variant of each per-direction procedure
type pathProcs struct {
	getFreq, setFreq, listFreq    proc
	words, quantity, number       proc
	getEnable, setEnable          proc
	resolution, interrupt         proc
	getBuffer, remBuffer, pointer proc
	start, stop                   proc
}

var (
	adcProcs = pathProcs{
		getFreq: zGetFreqADC, setFreq: zSetFreqADC, listFreq: zGetListFreqADC,
		words: zGetWordsADC, quantity: zGetQuantityChannelADC, number: zGetNumberInputADC,
		getEnable: zGetInputADC, setEnable: zSetInputADC,
		resolution: zGetDigitalResolChanADC, interrupt: zGetInterruptADC,
		getBuffer: zGetBufferADC, remBuffer: zRemBufferADC, pointer: zGetPointerADC,
		start: zStartADC, stop: zStopADC,
	}
	dacProcs = pathProcs{
		getFreq: zGetFreqDAC, setFreq: zSetFreqDAC, listFreq: zGetListFreqDAC,
		words: zGetWordsDAC, quantity: zGetQuantityChannelDAC, number: zGetNumberOutputDAC,
		getEnable: zGetOutputDAC, setEnable: zSetOutputDAC,
		resolution: zGetDigitalResolChanDAC, interrupt: zGetInterruptDAC,
		getBuffer: zGetBufferDAC, remBuffer: zRemBufferDAC, pointer: zGetPointerDAC,
		start: zStartDAC, stop: zStopDAC,
	}
)
