package application

import (
	"context"
	"encoding/base64"
	"encoding/csv"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stampcard/internal/pkg/logger"
	"stampcard/internal/service/loyalty/domain"
	"stampcard/internal/service/loyalty/domain/port"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	qrSize               = 512
	fallbackBusinessName = "tu negocio"
)

// ClientService 提供商户后台的顾客列表、扫码历史和顾客二维码
type ClientService struct {
	ledger     domain.Ledger
	businesses domain.BusinessRepository
	qr         port.QREncoder
	tracer     trace.Tracer
}

func NewClientService(ledger domain.Ledger, businesses domain.BusinessRepository, qr port.QREncoder, tracer trace.Tracer) *ClientService {
	return &ClientService{ledger: ledger, businesses: businesses, qr: qr, tracer: tracer}
}

// ClampHistoryPage 把分页参数限制在合法范围内，limit 为 0 表示使用默认值
func ClampHistoryPage(limit, offset int) (int, int) {
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	limit = max(1, min(maxHistoryLimit, limit))
	return limit, max(0, offset)
}

// History 分页返回扫码日志。
// 读取失败时返回空列表，后台页面不因日志表异常而报错。
func (s *ClientService) History(ctx context.Context, businessID string, limit, offset int) (*HistoryResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.History")
	defer span.End()

	limit, offset = ClampHistoryPage(limit, offset)
	span.SetAttributes(attribute.String("business.id", businessID), attribute.Int("page.limit", limit), attribute.Int("page.offset", offset))

	resp := &HistoryResponse{OK: true, Items: []HistoryItem{}}
	if !s.ledger.SupportsAuditLog() {
		return resp, nil
	}
	entries, total, err := s.ledger.ListScanEvents(ctx, businessID, limit, offset)
	if err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Warn().Err(err).Str("business_id", businessID).Msg("history unavailable")
		return resp, nil
	}
	for _, e := range entries {
		resp.Items = append(resp.Items, HistoryItem{
			ID:          e.ID,
			CreatedAt:   e.CreatedAt,
			ClientID:    e.ClientID,
			ClientName:  e.ClientName,
			StampsAdded: e.StampsAdded,
			RewardsUsed: e.RewardsUsed,
			Payload:     e.Payload,
		})
	}
	resp.Total = total
	return resp, nil
}

// ListClients 按姓名排序列出商户的会员
func (s *ClientService) ListClients(ctx context.Context, businessID string) (*ClientsResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListClients")
	defer span.End()

	details, err := s.ledger.ListByBusiness(ctx, businessID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	rows := make([]ClientRow, 0, len(details))
	for i := range details {
		rows = append(rows, toClientRow(&details[i]))
	}
	return &ClientsResponse{Clients: rows}, nil
}

// ExportClientsCSV 以 CSV 写出会员列表
func (s *ClientService) ExportClientsCSV(ctx context.Context, businessID string, w io.Writer) error {
	resp, err := s.ListClients(ctx, businessID)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "name", "email", "phone", "stamps", "rewards", "last_scan_at"}); err != nil {
		return errors.Wrap(err, "csv: write header")
	}
	for _, r := range resp.Clients {
		rewards, lastScan := "", ""
		if r.Rewards != nil {
			rewards = strconv.Itoa(*r.Rewards)
		}
		if r.LastScanAt != nil {
			lastScan = r.LastScanAt.UTC().Format(time.RFC3339)
		}
		if err := cw.Write([]string{r.ID, r.Name, r.Email, r.Phone, strconv.Itoa(r.Stamps), rewards, lastScan}); err != nil {
			return errors.Wrap(err, "csv: write row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "csv: flush")
}

// ClientDetail 返回商户下某个顾客的会员状态
func (s *ClientService) ClientDetail(ctx context.Context, businessID, clientID string) (*ClientResponse, error) {
	detail, err := s.ledger.FindByClient(ctx, businessID, clientID)
	if errors.Is(err, domain.ErrMembershipNotFound) {
		return nil, domain.ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ClientResponse{Client: toClientRow(detail)}, nil
}

// QR 生成顾客二维码，内容是带 client 参数的集章地址。
// 找不到所属商户时使用通用名称。
func (s *ClientService) QR(ctx context.Context, clientID, baseURL string) (*QRResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.QR")
	defer span.End()

	if clientID == "" {
		return nil, domain.ErrMissingClientID
	}
	name := fallbackBusinessName
	m, err := s.ledger.FindFirstByClient(ctx, clientID)
	switch {
	case err == nil:
		if biz, err := s.businesses.FindByID(ctx, m.BusinessID); err == nil && biz.Name != "" {
			name = biz.Name
		}
	case !errors.Is(err, domain.ErrMembershipNotFound):
		span.RecordError(err)
		return nil, err
	}

	payload := strings.TrimRight(baseURL, "/") + "/api/scan/add-stamp?client=" + url.QueryEscape(clientID)
	png, err := s.qr.EncodePNG(payload, qrSize)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	resp := &QRResponse{
		OK:      true,
		QR:      "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		Payload: payload,
	}
	resp.Business.Name = name
	return resp, nil
}

func toClientRow(d *domain.MembershipDetail) ClientRow {
	return ClientRow{
		ID:         d.Client.ID,
		Name:       d.Client.Name,
		Email:      d.Client.Email,
		Phone:      d.Client.Phone,
		Stamps:     d.Membership.Stamps,
		Rewards:    d.Membership.Rewards,
		LastScanAt: d.Membership.LastScanAt,
	}
}
