// internal/service/loyalty/domain/message.go
package domain

import (
	"strconv"
	"strings"
)

// 默认提示语，商户未配置时使用
const (
	DefaultStampOne         = "Has ganado {#} sello."
	DefaultStampMany        = "Has ganado {#} sellos."
	DefaultRewardEarnedOne  = "¡Has obtenido 1 {premio}!"
	DefaultRewardEarnedMany = "¡Has obtenido {#} {premio}!"
	DefaultRewardRedeemOne  = "Has canjeado 1 {premio}."
	DefaultRewardRedeemMany = "Has canjeado {#} {premio}."

	// DefaultRewardName 是兑换提示中奖励名为空时的占位
	DefaultRewardName = "premio"
)

// Messages 是商户配置的六个提示模板，空字符串表示使用默认值
type Messages struct {
	StampOne         string
	StampMany        string
	RewardEarnedOne  string
	RewardEarnedMany string
	RewardRedeemOne  string
	RewardRedeemMany string
}

type MessageKind int

const (
	MessageStamp MessageKind = iota
	MessageRewardEarned
	MessageRewardRedeem
)

// MessageContext 是模板替换的数据
type MessageContext struct {
	ClientName string
	Count      int
	RewardName string
}

// Format 替换 {nombre}、{#}、{premio}，区分大小写，未知占位符保持原样
func Format(template string, c MessageContext) string {
	r := strings.NewReplacer(
		"{nombre}", c.ClientName,
		"{#}", strconv.Itoa(c.Count),
		"{premio}", c.RewardName,
	)
	return r.Replace(template)
}

// Template 按数量选择单数或复数模板，未配置时回退到默认值
func (m Messages) Template(kind MessageKind, count int) string {
	var one, many, defOne, defMany string
	switch kind {
	case MessageStamp:
		one, many, defOne, defMany = m.StampOne, m.StampMany, DefaultStampOne, DefaultStampMany
	case MessageRewardEarned:
		one, many, defOne, defMany = m.RewardEarnedOne, m.RewardEarnedMany, DefaultRewardEarnedOne, DefaultRewardEarnedMany
	default:
		one, many, defOne, defMany = m.RewardRedeemOne, m.RewardRedeemMany, DefaultRewardRedeemOne, DefaultRewardRedeemMany
	}
	if count == 1 {
		return firstNonEmpty(one, defOne)
	}
	return firstNonEmpty(many, defMany)
}

// Render 选择模板并完成替换
func (m Messages) Render(kind MessageKind, c MessageContext) string {
	return Format(m.Template(kind, c.Count), c)
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
