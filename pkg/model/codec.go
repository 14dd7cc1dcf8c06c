package model

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrMalformedEvent is returned by Decode for input that is not a JSON object.
var ErrMalformedEvent = errors.New("malformed event")

// Decode parses one newline-delimited JSON event into ev:
//
//	{"id":"run1:ls4:ev77","products":{"TriggerResults::HLT":{
//	  "menu_version":"v3","menu":["HLT_Mu_v1","HLT_Bad_v2"],"accept":[true,false]}}}
//
// Products are valid unless they carry "valid":false. Events without an id
// get a random one. raw is retained by ev and must not be modified afterwards.
func Decode(raw []byte, ev *Event) error {
	if !gjson.ValidBytes(raw) {
		return ErrMalformedEvent
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return ErrMalformedEvent
	}
	if ev.Products == nil {
		ev.Products = make(map[InputTag]*TriggerResults)
	}

	ev.Raw = raw
	ev.Timestamp = time.Now()
	ev.ID = root.Get("id").String()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	var decodeErr error
	root.Get("products").ForEach(func(key, value gjson.Result) bool {
		tag, err := ParseInputTag(key.String())
		if err != nil {
			decodeErr = fmt.Errorf("%w: %v", ErrMalformedEvent, err)
			return false
		}
		ev.Products[tag] = decodeResults(value)
		return true
	})
	return decodeErr
}

func decodeResults(v gjson.Result) *TriggerResults {
	p := &TriggerResults{
		MenuVersion: v.Get("menu_version").String(),
		Valid:       v.IsObject(),
	}
	if valid := v.Get("valid"); valid.Exists() {
		p.Valid = p.Valid && valid.Bool()
	}
	v.Get("menu").ForEach(func(_, name gjson.Result) bool {
		p.MenuNames = append(p.MenuNames, name.String())
		return true
	})
	v.Get("accept").ForEach(func(_, fired gjson.Result) bool {
		p.Accepted = append(p.Accepted, fired.Bool())
		return true
	})
	return p
}

// Encode renders an accepted event for the outputs: the received JSON with
// its id and the triggersFired bitmask set.
func Encode(ev *Event) ([]byte, error) {
	out, err := sjson.SetBytes(bytes.TrimSpace(ev.Raw), "id", ev.ID)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	fired := []bool(ev.TriggersFired)
	if fired == nil {
		fired = []bool{}
	}
	out, err = sjson.SetBytes(out, "triggersFired", fired)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	return out, nil
}
