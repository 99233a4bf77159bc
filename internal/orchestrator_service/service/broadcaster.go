package service

import (
	"encoding/json"
	"sync"

	"GraphMind/internal/agent"
	"GraphMind/internal/models"
	"GraphMind/pkg/logger"
)

// PushChannel 是状态广播的传输抽象。
// 返回 false 表示消息被丢弃（会话未连接或写入失败），广播器不重试。
type PushChannel interface {
	SendMessage(sessionID string, message []byte) bool
}

// StatusBroadcaster 把执行中的任务状态投影为快照并异步推送。
// 每个会话有一条有界队列和一个专用的后台发送协程：入队永不阻塞，
// 队列满时直接丢弃本次快照。丢失的快照不补发——最终响应才是权威结果。
type StatusBroadcaster struct {
	channel   PushChannel
	registry  *agent.Registry
	queueSize int
	logger    *logger.Logger

	mu       sync.Mutex
	sessions map[string]chan []byte
	closed   bool
}

// NewStatusBroadcaster 创建一个状态广播器。
func NewStatusBroadcaster(channel PushChannel, registry *agent.Registry, queueSize int, log *logger.Logger) *StatusBroadcaster {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &StatusBroadcaster{
		channel:   channel,
		registry:  registry,
		queueSize: queueSize,
		logger:    log,
		sessions:  make(map[string]chan []byte),
	}
}

// PublishTasks 推送一次完整的任务快照（规划伪任务 + 全部执行任务）。
func (b *StatusBroadcaster) PublishTasks(sessionID string, plan *models.Plan, planningDone bool) {
	update := models.MultiTaskUpdate{
		Type:      models.UpdateTypeMultiTask,
		SessionID: sessionID,
		Tasks:     buildTaskViews(plan, planningDone, b.registry),
	}
	b.publish(sessionID, update)
}

// PublishPlanDetails 在规划完成时单独推送一次计划详情。
func (b *StatusBroadcaster) PublishPlanDetails(sessionID string, plan *models.Plan) {
	update := models.MultiTaskUpdate{
		Type:      models.UpdateTypeMultiTask,
		SessionID: sessionID,
		Tasks:     []models.TaskView{plannerView(plan, true)},
	}
	b.publish(sessionID, update)
}

// PublishTitle 推送会话标题变化通知。
func (b *StatusBroadcaster) PublishTitle(sessionID, title string) {
	update := models.SessionTitleUpdate{
		Type:      models.UpdateTypeSessionTitle,
		SessionID: sessionID,
		Title:     title,
	}
	b.publish(sessionID, update)
}

// publish 序列化消息并投入会话队列。序列化失败只记录。
func (b *StatusBroadcaster) publish(sessionID string, message interface{}) {
	payload, err := json.Marshal(message)
	if err != nil {
		b.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to marshal status update")
		return
	}
	b.enqueue(sessionID, payload)
}

// enqueue 非阻塞入队。队列满时丢弃并记录，绝不拖慢执行引擎。
// 发送必须在锁内完成：CloseSession 在同一把锁下 close 队列，
// 锁外发送会撞上已关闭的通道。带 default 的 select 不会阻塞，
// 持锁发送不影响不拖慢的保证。
func (b *StatusBroadcaster) enqueue(sessionID string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	queue, ok := b.sessions[sessionID]
	if !ok {
		queue = make(chan []byte, b.queueSize)
		b.sessions[sessionID] = queue
		go b.drain(sessionID, queue)
	}

	select {
	case queue <- payload:
	default:
		b.logger.WithPayload(map[string]interface{}{"session_id": sessionID}).Warn("Status queue full, update dropped")
	}
}

// drain 是每个会话的专用发送协程。推送结果不回传：
// 发送失败的消息静默丢失。
func (b *StatusBroadcaster) drain(sessionID string, queue <-chan []byte) {
	for payload := range queue {
		if !b.channel.SendMessage(sessionID, payload) {
			b.logger.WithPayload(map[string]interface{}{"session_id": sessionID}).Debug("Status update dropped by push channel")
		}
	}
}

// CloseSession 关闭某个会话的队列并结束其发送协程。
func (b *StatusBroadcaster) CloseSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if queue, ok := b.sessions[sessionID]; ok {
		close(queue)
		delete(b.sessions, sessionID)
	}
}

// Shutdown 关闭所有会话队列。
func (b *StatusBroadcaster) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, queue := range b.sessions {
		close(queue)
		delete(b.sessions, id)
	}
}
