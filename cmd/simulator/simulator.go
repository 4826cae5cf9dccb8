package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
)

// SimulatorConfig holds the simulated driver, charger and vehicle
type SimulatorConfig struct {
	ServerURL          string
	UserID             string
	OperatorID         string
	ChargerID          string
	Book               bool
	TopUp              string
	PowerKW            float64
	BatterySOC         int
	BatteryCapacityKWh float64
	Interval           time.Duration
	Duration           time.Duration
}

// TokenFunc issues a bearer token for a user
type TokenFunc func(userID string, role domain.UserRole) (string, error)

// Simulator plays a vehicle charging on a rented charger through the REST API
type Simulator struct {
	config    *SimulatorConfig
	client    *fasthttp.Client
	userToken string
	opToken   string
	log       *zap.Logger

	seq   int64
	meter decimal.Decimal
	soc   float64
}

// Summary is the outcome of one simulated session
type Summary struct {
	ID      string
	Status  string
	Energy  string
	Cost    string
	Balance string
}

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Body)
}

func NewSimulator(config *SimulatorConfig, tokens TokenFunc, log *zap.Logger) (*Simulator, error) {
	if config.UserID == "" {
		config.UserID = uuid.New().String()
	}
	if config.OperatorID == "" {
		config.OperatorID = uuid.New().String()
	}
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}

	userToken, err := tokens(config.UserID, domain.UserRoleUser)
	if err != nil {
		return nil, err
	}
	opToken, err := tokens(config.OperatorID, domain.UserRoleOperator)
	if err != nil {
		return nil, err
	}

	return &Simulator{
		config: config,
		client: &fasthttp.Client{
			Name:         "evrental-simulator",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		userToken: userToken,
		opToken:   opToken,
		log:       log,
		soc:       float64(config.BatterySOC),
	}, nil
}

// Run registers what is missing, charges for the configured duration, then stops the session
func (s *Simulator) Run(ctx context.Context) (*Summary, error) {
	chargerID := s.config.ChargerID
	if chargerID == "" {
		var c domain.Charger
		err := s.call("POST", "/api/v1/chargers", s.opToken, map[string]interface{}{
			"name":           "Simulated depot",
			"total_ports":    2,
			"power_kw":       s.config.PowerKW,
			"connector_type": "Type2",
			"price_schedule": domain.PriceSchedule{
				PerHourRate:    decimal.RequireFromString("2.00"),
				PerEnergyRate:  decimal.RequireFromString("0.35"),
				PeakMultiplier: decimal.RequireFromString("1.5"),
			},
		}, &c)
		if err != nil {
			return nil, fmt.Errorf("register charger: %w", err)
		}
		chargerID = c.ID
		s.log.Info("Charger registered", zap.String("charger_id", chargerID))
	}

	if amount, err := decimal.NewFromString(s.config.TopUp); err == nil && amount.IsPositive() {
		if err := s.call("POST", "/api/v1/wallet/topup", s.userToken, map[string]interface{}{
			"amount": amount, "reference": "sim-" + uuid.New().String()[:8],
		}, nil); err != nil {
			return nil, fmt.Errorf("top up: %w", err)
		}
	}

	start := map[string]interface{}{"charger_id": chargerID}
	if s.config.Book {
		var b domain.Booking
		now := time.Now().UTC()
		if err := s.call("POST", "/api/v1/bookings", s.userToken, map[string]interface{}{
			"charger_id": chargerID,
			"start_time": now.Add(time.Minute),
			"end_time":   now.Add(time.Minute + s.config.Duration + 15*time.Minute),
		}, &b); err != nil {
			return nil, fmt.Errorf("book: %w", err)
		}
		start["booking_id"] = b.ID
		s.log.Info("Booking created", zap.String("booking_id", b.ID))
	}

	var session domain.ChargingSession
	if err := s.call("POST", "/api/v1/sessions/start", s.userToken, start, &session); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	s.log.Info("Charging started", zap.String("session_id", session.ID))

	s.charge(ctx, session.ID)

	// the stop must go through even when ctx was cancelled by a signal
	if err := s.call("POST", "/api/v1/sessions/"+session.ID+"/stop", s.userToken, nil, &session); err != nil {
		return nil, fmt.Errorf("stop session: %w", err)
	}

	var wallet domain.Wallet
	if err := s.call("GET", "/api/v1/wallet", s.userToken, nil, &wallet); err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}

	cost := "0.00"
	if session.Cost != nil {
		cost = session.Cost.StringFixed(2)
	}
	return &Summary{
		ID:      session.ID,
		Status:  string(session.Status),
		Energy:  session.EnergyDelivered.StringFixed(3),
		Cost:    cost,
		Balance: wallet.Balance.StringFixed(2),
	}, nil
}

func (s *Simulator) charge(ctx context.Context, sessionID string) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	deadline := time.NewTimer(s.config.Duration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
			if s.soc >= 100 {
				s.log.Info("Battery full")
				return
			}
			if err := s.sendMeterValues(sessionID); err != nil {
				s.log.Warn("Telemetry rejected", zap.Error(err))
			}
		}
	}
}

func (s *Simulator) sendMeterValues(sessionID string) error {
	kwh := s.config.PowerKW * s.config.Interval.Hours()
	s.seq++
	s.meter = s.meter.Add(decimal.NewFromFloat(kwh)).Round(4)
	if s.config.BatteryCapacityKWh > 0 {
		s.soc += kwh / s.config.BatteryCapacityKWh * 100
		if s.soc > 100 {
			s.soc = 100
		}
	}

	sample := domain.Telemetry{
		Seq:            s.seq,
		CumulativeKWh:  s.meter,
		PowerKW:        s.config.PowerKW,
		VoltageV:       400,
		CurrentA:       s.config.PowerKW * 1000 / 400,
		TemperatureC:   28 + s.soc/10,
		BatteryPercent: int(s.soc),
	}
	s.log.Debug("Sending meter values",
		zap.Int64("seq", s.seq),
		zap.String("kwh", s.meter.String()),
		zap.Int("soc", sample.BatteryPercent),
	)
	return s.call("POST", "/api/v1/sessions/"+sessionID+"/telemetry", s.userToken, sample, nil)
}

func (s *Simulator) call(method, path, token string, body, out interface{}) error {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.config.ServerURL + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+token)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		req.Header.SetContentType("application/json")
		req.SetBody(data)
	}

	if err := s.client.DoTimeout(req, resp, 15*time.Second); err != nil {
		return err
	}
	if code := resp.StatusCode(); code >= 300 {
		return &apiError{Status: code, Body: string(resp.Body())}
	}
	if out != nil {
		return json.Unmarshal(resp.Body(), out)
	}
	return nil
}
