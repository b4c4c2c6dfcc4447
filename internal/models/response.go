package models

import "wayfinder.transitlab.org/internal/clock"

// ResponseModel is the JSON envelope returned by every API endpoint.
type ResponseModel struct {
	Code        int    `json:"code"`
	CurrentTime int64  `json:"currentTime"`
	Text        string `json:"text"`
	Version     int    `json:"version"`
	Data        any    `json:"data,omitempty"`
}

// ResponseCurrentTime returns the envelope timestamp in Unix milliseconds.
func ResponseCurrentTime(c clock.Clock) int64 {
	if c == nil {
		c = clock.RealClock{}
	}
	return c.NowUnixMilli()
}

// NewOKResponse wraps data in a success envelope.
func NewOKResponse(c clock.Clock, data any) ResponseModel {
	return ResponseModel{
		Code:        200,
		CurrentTime: ResponseCurrentTime(c),
		Text:        "OK",
		Version:     2,
		Data:        data,
	}
}
