package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// MovementAtStationWork is the last-movement state of a bin that has been
// presented at a station and is waiting to be worked.
const MovementAtStationWork = "AT_STATION_WORK"

// Sender is implemented by *Client.
type Sender interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// Storage is a bin record as returned by the storage manager.
type Storage struct {
	Code int `json:"code"`
}

// StorageStatus is a bin record attached to a station.
type StorageStatus struct {
	Code         int    `json:"code"`
	LastMovement string `json:"lastMovement"`
}

type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

type callRequest struct {
	Station  int   `json:"station"`
	Storages []int `json:"storages"`
}

type storeRequest struct {
	Station                  int      `json:"station"`
	Storage                  int      `json:"storage"`
	AdvancedOrdersToComplete []string `json:"advancedOrdersToComplete,omitempty"`
}

type orderStorage struct {
	Code int `json:"code"`
}

type upsertOrderRequest struct {
	OrderNo  string         `json:"orderNo"`
	Storages []orderStorage `json:"storages"`
}

type dispatcherSetting struct {
	Value map[string]struct {
		IsActive bool `json:"isActive"`
	} `json:"value"`
}

// StorageManager is a typed client for the SM service.
type StorageManager struct {
	sender  Sender
	baseURL string
}

// NewStorageManager returns a client for the SM service at baseURL.
func NewStorageManager(sender Sender, baseURL string) *StorageManager {
	return &StorageManager{
		sender:  sender,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// BinsInLayers lists the bins currently available in layers
// minLayer..maxLayer. A nil quantity asks for all of them.
func (s *StorageManager) BinsInLayers(ctx context.Context, minLayer, maxLayer int, quantity *int) ([]Storage, error) {
	query := url.Values{}
	query.Set("minLayer", strconv.Itoa(minLayer))
	query.Set("maxLayer", strconv.Itoa(maxLayer))
	if quantity != nil {
		query.Set("qty", strconv.Itoa(*quantity))
	}

	resp, err := s.sender.Send(ctx, Request{
		Method: http.MethodGet,
		URL:    s.baseURL + "/v3/storages/layer",
		Query:  query,
	})
	if err != nil {
		return nil, err
	}

	var out dataEnvelope[[]Storage]
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// StationStatus returns the bins at (at most two records: station and
// gateway) the given station.
func (s *StorageManager) StationStatus(ctx context.Context, station int) ([]StorageStatus, error) {
	resp, err := s.sender.Send(ctx, Request{
		Method: http.MethodGet,
		URL:    s.baseURL + "/v3/storages",
		Query:  url.Values{"stations": {strconv.Itoa(station)}},
	})
	if err != nil {
		return nil, err
	}

	var out dataEnvelope[[]StorageStatus]
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CallBins asks the grid to bring the given bins to a station.
func (s *StorageManager) CallBins(ctx context.Context, station int, storages []int) error {
	if storages == nil {
		storages = []int{}
	}
	_, err := s.sender.Send(ctx, Request{
		Method: http.MethodPost,
		URL:    s.baseURL + "/v3/operations/call",
		Body:   callRequest{Station: station, Storages: storages},
	})
	return err
}

// StoreBin sends a worked bin back into the grid. A non-empty advanceOrder
// marks that order as complete for this bin.
func (s *StorageManager) StoreBin(ctx context.Context, station, storage int, advanceOrder string) error {
	body := storeRequest{Station: station, Storage: storage}
	if advanceOrder != "" {
		body.AdvancedOrdersToComplete = []string{advanceOrder}
	}

	_, err := s.sender.Send(ctx, Request{
		Method: http.MethodPost,
		URL:    s.baseURL + "/v3/operations/store",
		Body:   body,
	})
	return err
}

// UpsertAdvanceOrder registers a pre-allocated order with its bins.
func (s *StorageManager) UpsertAdvanceOrder(ctx context.Context, orderNo string, storages []int) error {
	items := make([]orderStorage, len(storages))
	for i, code := range storages {
		items[i] = orderStorage{Code: code}
	}

	_, err := s.sender.Send(ctx, Request{
		Method: http.MethodPost,
		URL:    s.baseURL + "/v3/advanced-orders/upsert",
		Body:   upsertOrderRequest{OrderNo: orderNo, Storages: items},
	})
	return err
}

// OrderDispatcherActive reports whether the order dispatcher is active for
// zone.
func (s *StorageManager) OrderDispatcherActive(ctx context.Context, zone string, timeout time.Duration) (bool, error) {
	resp, err := s.sender.Send(ctx, Request{
		Method:  http.MethodGet,
		URL:     s.baseURL + "/v3/settings/OrderDispatcher",
		Timeout: timeout,
	})
	if err != nil {
		return false, err
	}

	var out dataEnvelope[dispatcherSetting]
	if err := resp.Decode(&out); err != nil {
		return false, err
	}

	setting, ok := out.Data.Value[zone]
	if !ok {
		return false, fmt.Errorf("zone %q not found in order dispatcher settings", zone)
	}
	return setting.IsActive, nil
}
