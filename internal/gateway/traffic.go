package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const cycleStopReason = "Matrix simulation has stopped the simulation."

type cycleStopRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type healthcheckResponse struct {
	Model struct {
		CycleStop struct {
			Status bool `json:"status"`
		} `json:"cycle_stop"`
	} `json:"model"`
}

// TrafficControl is a typed client for the TC service.
type TrafficControl struct {
	sender  Sender
	baseURL string
}

// NewTrafficControl returns a client for the TC service at baseURL.
func NewTrafficControl(sender Sender, baseURL string) *TrafficControl {
	return &TrafficControl{
		sender:  sender,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// CycleStop halts the robot cycle on the grid.
func (t *TrafficControl) CycleStop(ctx context.Context) error {
	_, err := t.sender.Send(ctx, Request{
		Method: http.MethodPost,
		URL:    t.baseURL + "/operation/cyclestop",
		Body:   cycleStopRequest{Status: "Enabled", Reason: cycleStopReason},
	})
	return err
}

// CycleStopped reports the cycle-stop flag from the TC healthcheck.
func (t *TrafficControl) CycleStopped(ctx context.Context, timeout time.Duration) (bool, error) {
	resp, err := t.sender.Send(ctx, Request{
		Method:  http.MethodGet,
		URL:     t.baseURL + "/operation/healthcheck",
		Timeout: timeout,
	})
	if err != nil {
		return false, err
	}

	var out healthcheckResponse
	if err := resp.Decode(&out); err != nil {
		return false, err
	}
	return out.Model.CycleStop.Status, nil
}
