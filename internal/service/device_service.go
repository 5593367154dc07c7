package service

import (
	"context"
	"fmt"
	"time"

	"gasguard/internal/models"
	"gasguard/internal/repository"

	"go.uber.org/zap"
)

// DiscoveryWindow 最近多久上报过心跳的设备视为在线
const DiscoveryWindow = 10 * time.Minute

// HeartbeatRequest 设备心跳
type HeartbeatRequest struct {
	DeviceID  string `json:"device_id"`
	IPAddress string `json:"ip_address"`
}

// DiscoverResponse 设备发现结果
type DiscoverResponse struct {
	Devices    []models.DiscoveredDevice `json:"devices"`
	TotalFound int                       `json:"total_found"`
}

// DeviceService 设备心跳与发现
type DeviceService struct {
	devices   repository.DevicesRepository
	bootstrap *Bootstrap
	now       func() time.Time
	logger    *zap.Logger
}

func NewDeviceService(devices repository.DevicesRepository, bootstrap *Bootstrap, logger *zap.Logger) *DeviceService {
	return &DeviceService{devices: devices, bootstrap: bootstrap, now: time.Now, logger: logger}
}

// Heartbeat 更新 last_seen / ip_address / is_active
func (s *DeviceService) Heartbeat(ctx context.Context, req HeartbeatRequest) (*models.Device, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ErrInvalidInput)
	}
	device, err := s.devices.TouchDevice(ctx, req.DeviceID, req.IPAddress, s.now())
	if err != nil {
		s.logger.Error("TouchDevice failed", zap.String("device_id", req.DeviceID), zap.Error(err))
		return nil, fmt.Errorf("failed to update device: %w", err)
	}
	return device, nil
}

// Discover 最近在线的设备：未认领的可认领；他人认领的不返回
func (s *DeviceService) Discover(ctx context.Context, p Principal) (*DiscoverResponse, error) {
	if s.bootstrap != nil {
		if err := s.bootstrap.Run(ctx); err != nil {
			return nil, err
		}
	}

	seen, err := s.devices.ListDevicesSeenSince(ctx, s.now().Add(-DiscoveryWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	resp := &DiscoverResponse{Devices: []models.DiscoveredDevice{}, TotalFound: len(seen)}
	for _, d := range seen {
		switch {
		case !d.IsClaimed():
			resp.Devices = append(resp.Devices, models.DiscoveredDevice{Device: d, Claimable: true})
		case p.UserID != "" && *d.ClaimedBy == p.UserID:
			resp.Devices = append(resp.Devices, models.DiscoveredDevice{Device: d, OwnedByMe: true})
		}
	}
	return resp, nil
}
