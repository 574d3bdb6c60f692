package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"RiskLens/pkg/engine"
	"RiskLens/pkg/messaging"
	"RiskLens/pkg/model"
	"RiskLens/pkg/repository"
)

// 示例告警：低对手方多样性的刷量交易
const sampleAlert = `{
	"alert_id": "sample-wash-trading",
	"address": "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0",
	"chain": "ethereum",
	"pool": "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640",
	"pair": "USDC/WETH",
	"time_window_sec": 300,
	"pattern_type": "WASH_TRADING",
	"score": 0.87,
	"features": {
		"counterparty_diversity": 2,
		"total_volume_usd": 125000,
		"roundtrip_count": 15,
		"self_trade_ratio": 0.6
	},
	"evidence_samples": [{"tx_hash": "0xabc"}],
	"detected_at": "2026-02-25T10:30:00Z"
}`

func main() {
	alertPath := flag.String("alert", "", "告警JSON文件，为空时使用内置示例")
	rulesPath := flag.String("rules", "", "规则YAML文件，为空时使用默认规则")
	profile := flag.String("profile", "default", "评分配置: default、conservative、aggressive")
	flag.Parse()

	alert, err := loadAlert(*alertPath)
	if err != nil {
		log.Fatalf("读取告警失败: %v\n", err)
	}

	p, err := engine.ParseProfile(*profile)
	if err != nil {
		log.Fatalf("%v\n", err)
	}

	var decisionEngine *engine.DecisionEngine
	if *rulesPath == "" {
		decisionEngine, err = engine.Build(engine.DefaultRules(), p, "")
	} else {
		decisionEngine, _, err = repository.LoadEngine(*rulesPath, p, "")
	}
	if err != nil {
		log.Fatalf("创建决策引擎失败: %v\n", err)
	}

	decision := decisionEngine.EvaluateAlert(alert)

	out, err := json.MarshalIndent(decision, "", "  ")
	if err != nil {
		log.Fatalf("序列化决策失败: %v\n", err)
	}
	fmt.Println(string(out))
}

func loadAlert(path string) (model.Alert, error) {
	if path == "" {
		return messaging.DecodeAlert([]byte(sampleAlert))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Alert{}, err
	}
	return messaging.DecodeAlert(data)
}
