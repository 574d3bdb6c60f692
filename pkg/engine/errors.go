package engine

import "errors"

// 配置错误，构建引擎时返回，调用方用 errors.Is 判断
var (
	ErrInvalidWeights  = errors.New("评分权重之和必须为1.0")
	ErrUnknownOperator = errors.New("未知的条件操作符")
	ErrInvalidOperand  = errors.New("条件操作数无效")
	ErrUnknownProfile  = errors.New("未知的评分配置")
	ErrInvalidRule     = errors.New("规则定义无效")
)
