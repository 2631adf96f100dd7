package nats

// NATS Subject 常量定义
const (
	// SubjectGatewayFanout 网关节点间的房间事件广播
	// 每个节点都订阅，事件带源节点 ID，源节点自己跳过
	SubjectGatewayFanout = "tl.gateway.fanout"
)
