package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bitfantasy/nimo-staffing/internal/model/entity"
	"github.com/bitfantasy/nimo-staffing/internal/repository"
	"go.uber.org/zap"
)

// FeishuClient 飞书开放平台客户端
type FeishuClient struct {
	appID       string
	appSecret   string
	accessToken string
	tokenExpiry time.Time
	tokenMutex  sync.RWMutex
	httpClient  *http.Client
}

// NewFeishuClient 创建飞书客户端
func NewFeishuClient(appID, appSecret string) *FeishuClient {
	return &FeishuClient{
		appID:      appID,
		appSecret:  appSecret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetTenantAccessToken 获取企业访问令牌，带过期前 60s 的本地缓存
func (c *FeishuClient) GetTenantAccessToken(ctx context.Context) (string, error) {
	c.tokenMutex.RLock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		token := c.accessToken
		c.tokenMutex.RUnlock()
		return token, nil
	}
	c.tokenMutex.RUnlock()

	c.tokenMutex.Lock()
	defer c.tokenMutex.Unlock()

	// 再次检查（double-check）
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	body, _ := json.Marshal(map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	})
	req, err := http.NewRequestWithContext(ctx, "POST", "https://open.feishu.cn/open-apis/auth/v3/tenant_access_token/internal", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	var result struct {
		Code   int    `json:"code"`
		Msg    string `json:"msg"`
		Token  string `json:"tenant_access_token"`
		Expire int    `json:"expire"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if result.Code != 0 {
		return "", fmt.Errorf("feishu error: %s", result.Msg)
	}

	c.accessToken = result.Token
	c.tokenExpiry = time.Now().Add(time.Duration(result.Expire-60) * time.Second)
	return c.accessToken, nil
}

// SendMessage 发送消息
func (c *FeishuClient) SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) error {
	token, err := c.GetTenantAccessToken(ctx)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}

	body, _ := json.Marshal(map[string]string{
		"receive_id": receiveID,
		"msg_type":   msgType,
		"content":    content,
	})
	url := fmt.Sprintf("https://open.feishu.cn/open-apis/im/v1/messages?receive_id_type=%s", receiveIDType)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	var result struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if result.Code != 0 {
		return fmt.Errorf("feishu error: %s", result.Msg)
	}
	return nil
}

// SendCard 发送卡片消息
func (c *FeishuClient) SendCard(ctx context.Context, userID, title string, lines []string) error {
	elements := make([]map[string]interface{}, 0, len(lines))
	for _, line := range lines {
		elements = append(elements, map[string]interface{}{
			"tag": "div",
			"text": map[string]interface{}{
				"tag":     "plain_text",
				"content": line,
			},
		})
	}
	card := map[string]interface{}{
		"config": map[string]interface{}{
			"wide_screen_mode": true,
		},
		"header": map[string]interface{}{
			"title": map[string]interface{}{
				"tag":     "plain_text",
				"content": title,
			},
		},
		"elements": elements,
	}
	cardJSON, _ := json.Marshal(card)
	return c.SendMessage(ctx, "user_id", userID, "interactive", string(cardJSON))
}

// NotifyService 审批流消息通知服务
// 发送失败只记日志，不影响主流程
type NotifyService struct {
	feishu   *FeishuClient
	userRepo *repository.UserRepository
	logger   *zap.Logger
}

// NewNotifyService 创建通知服务
func NewNotifyService(feishu *FeishuClient, userRepo *repository.UserRepository, logger *zap.Logger) *NotifyService {
	return &NotifyService{feishu: feishu, userRepo: userRepo, logger: logger}
}

// NotifyApprovers 申请发起后通知所有审批人
func (s *NotifyService) NotifyApprovers(ctx context.Context, alloc *entity.ResourceAllocation, selected *entity.AllocationCandidate) {
	if s.feishu == nil {
		return
	}
	approvers, err := s.userRepo.ListByRole(ctx, entity.RoleApprover)
	if err != nil {
		s.logger.Warn("list approvers failed", zap.Error(err))
		return
	}

	title := "资源分配申请待审批"
	lines := s.cardLines(alloc, selected)
	for _, approver := range approvers {
		if approver.FeishuUserID == "" {
			continue
		}
		if err := s.feishu.SendCard(ctx, approver.FeishuUserID, title, lines); err != nil {
			s.logger.Warn("notify approver failed",
				zap.String("allocation_id", alloc.ID),
				zap.String("user_id", approver.ID),
				zap.Error(err))
		}
	}
}

// NotifyDecision 审批结果通知申请人
func (s *NotifyService) NotifyDecision(ctx context.Context, alloc *entity.ResourceAllocation, selected *entity.AllocationCandidate, approved bool, reason string) {
	if s.feishu == nil {
		return
	}
	requester, err := s.userRepo.FindByID(ctx, alloc.RequestedBy)
	if err != nil {
		s.logger.Warn("find requester failed",
			zap.String("allocation_id", alloc.ID),
			zap.Error(err))
		return
	}
	if requester.FeishuUserID == "" {
		return
	}

	title := "资源分配申请已通过"
	lines := s.cardLines(alloc, selected)
	if !approved {
		title = "资源分配申请被驳回"
		lines = append(lines, fmt.Sprintf("驳回原因: %s", reason))
	}
	if err := s.feishu.SendCard(ctx, requester.FeishuUserID, title, lines); err != nil {
		s.logger.Warn("notify requester failed",
			zap.String("allocation_id", alloc.ID),
			zap.String("user_id", requester.ID),
			zap.Error(err))
	}
}

func (s *NotifyService) cardLines(alloc *entity.ResourceAllocation, selected *entity.AllocationCandidate) []string {
	projectName := alloc.ProjectID
	if alloc.Project != nil {
		projectName = alloc.Project.Name
	}
	lines := []string{
		fmt.Sprintf("项目: %s", projectName),
		fmt.Sprintf("期间: %s 至 %s", entity.FormatDate(alloc.StartDate), entity.FormatDate(alloc.EndDate)),
		fmt.Sprintf("分配比例: %.0f%%", alloc.AllocationPercentage),
	}
	if selected != nil {
		name := selected.EmployeeID
		if selected.Employee != nil {
			name = selected.Employee.Name
		}
		lines = append(lines,
			fmt.Sprintf("候选员工: %s", name),
			fmt.Sprintf("预估成本: %.2f", selected.EstimatedCost))
	}
	return lines
}
