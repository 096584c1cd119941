package daq

import (
	"encoding/json"
	"fmt"
	"go/types"
	"net/http"
	"strconv"

	"github.com/nasa-jpl/zetstream/generichttp"
	"github.com/nasa-jpl/zetstream/util"
	"github.com/nasa-jpl/zetstream/zet"
)

// HTTPDigital adds routes for the digital port to a table
func HTTPDigital(d zet.Digital, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/digital/lines"}] = generichttp.GetInt(d.DigitalLines)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/digital/input"}] = generichttp.GetUint32(d.DigitalInput)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/digital/output"}] = generichttp.GetUint32(d.DigitalOutput)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/digital/output"}] = generichttp.SetUint32(d.SetDigitalOutput)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/digital/output-enable"}] = generichttp.GetUint32(d.DigitalOutputEnable)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/digital/output-enable"}] = generichttp.SetUint32(d.SetDigitalOutputEnable)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/digital/line"}] = GetLine(d)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/digital/line"}] = SetLine(d)
}

func checkLine(d zet.Digital, line uint) error {
	n, err := d.DigitalLines()
	if err != nil {
		return err
	}
	if int(line) >= n || line >= 32 {
		return fmt.Errorf("line %d of %d: %w", line, n, zet.ErrChannelOutOfRange)
	}
	return nil
}

// GetLine returns the input state of the line given by the "line" query parameter
func GetLine(d zet.Digital) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		line, err := strconv.ParseUint(r.URL.Query().Get("line"), 10, 8)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err = checkLine(d, uint(line)); err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		mask, err := d.DigitalInput()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		hp := generichttp.HumanPayload{T: types.Bool, Bool: util.GetBit(mask, uint(line))}
		hp.EncodeAndRespond(w, r)
	}
}

// SetLine drives one output line, leaving the others as they are
func SetLine(d zet.Digital) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in digitalLine
		err := json.NewDecoder(r.Body).Decode(&in)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err = checkLine(d, in.Line); err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		mask, err := d.DigitalOutput()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		err = d.SetDigitalOutput(util.SetBit(mask, in.Line, in.On))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
