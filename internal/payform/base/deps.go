package base

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payforms/internal/clock"
	"github.com/smallbiznis/payforms/internal/config"
	obsmetrics "github.com/smallbiznis/payforms/internal/observability/metrics"
	payabledomain "github.com/smallbiznis/payforms/internal/payable/domain"
	"github.com/smallbiznis/payforms/internal/payform/domain"
	txdomain "github.com/smallbiznis/payforms/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the collaborators shared by every payform instance.
type Deps struct {
	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Repo            domain.Repository
	Transactions    txdomain.Service
	Payables        payabledomain.Lookup
	Settings        *config.PayformsSettingsHolder
	Clock           clock.Clock
	Metrics         *obsmetrics.Metrics
	HTTPClient      *http.Client
	Sandbox         bool
	CallbackBaseURL string
}

type Params struct {
	fx.In

	Cfg          config.Config
	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         domain.Repository
	Transactions txdomain.Service
	Payables     payabledomain.Lookup           `optional:"true"`
	Settings     *config.PayformsSettingsHolder `optional:"true"`
	Clock        clock.Clock
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

func NewDeps(p Params) Deps {
	timeout := p.Cfg.Payforms.HubTimeout
	return Deps{
		DB:              p.DB,
		Log:             p.Log,
		GenID:           p.GenID,
		Repo:            p.Repo,
		Transactions:    p.Transactions,
		Payables:        p.Payables,
		Settings:        p.Settings,
		Clock:           p.Clock,
		Metrics:         p.Metrics,
		HTTPClient:      &http.Client{Timeout: timeout},
		Sandbox:         p.Cfg.Payforms.Sandbox,
		CallbackBaseURL: strings.TrimRight(p.Cfg.Payforms.CallbackBaseURL, "/"),
	}
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = clock.SystemClock{}
	}
	if d.HTTPClient == nil {
		d.HTTPClient = http.DefaultClient
	}
	return d
}
