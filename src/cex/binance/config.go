package binance

import "time"

// Config 币安客户端配置
type Config struct {
	APIKey    string        // API密钥
	SecretKey string        // API私钥
	BaseURL   string        // API地址，为空时使用库默认值
	Timeout   time.Duration // 请求超时时间
}

// DefaultBaseURL 币安现货API地址
const DefaultBaseURL = "https://api.binance.com"
