package pubsub

import (
	"sync"

	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
	"github.com/dep2p/go-dep2p-pubsub/pkg/types"
)

// ============================================================================
//                              处理器注册表
// ============================================================================

type topicHandler struct {
	id uint64
	fn interfaces.MessageHandler
}

type subChangeHandler struct {
	id uint64
	fn interfaces.SubscriptionChangeHandler
}

// handlerRegistry 主题处理器与订阅变更监听器
type handlerRegistry struct {
	mu        sync.RWMutex
	nextID    uint64
	topics    map[string][]topicHandler
	subChange []subChangeHandler
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{
		topics: make(map[string][]topicHandler),
	}
}

// addTopic 追加主题处理器，返回取消函数
func (r *handlerRegistry) addTopic(topic string, fn interfaces.MessageHandler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.topics[topic] = append(r.topics[topic], topicHandler{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.topics[topic]
		for i, h := range list {
			if h.id == id {
				list = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(r.topics, topic)
		} else {
			r.topics[topic] = list
		}
	}
}

// removeTopic 移除主题的全部处理器
func (r *handlerRegistry) removeTopic(topic string) {
	r.mu.Lock()
	delete(r.topics, topic)
	r.mu.Unlock()
}

// clearTopics 移除全部主题处理器，订阅变更监听器保留
func (r *handlerRegistry) clearTopics() {
	r.mu.Lock()
	r.topics = make(map[string][]topicHandler)
	r.mu.Unlock()
}

// addSubChange 追加订阅变更监听器，返回取消函数
func (r *handlerRegistry) addSubChange(fn interfaces.SubscriptionChangeHandler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subChange = append(r.subChange, subChangeHandler{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, h := range r.subChange {
			if h.id == id {
				r.subChange = append(r.subChange[:i:i], r.subChange[i+1:]...)
				return
			}
		}
	}
}

// emitMessage 调用主题处理器，处理器 panic 只记录日志
func (r *handlerRegistry) emitMessage(msg *interfaces.Message) {
	r.mu.RLock()
	list := r.topics[msg.Topic]
	r.mu.RUnlock()

	for _, h := range list {
		callSafely("topic handler", func() { h.fn(msg) })
	}
}

// emitSubscriptionChange 调用订阅变更监听器
func (r *handlerRegistry) emitSubscriptionChange(peer types.PeerID, subs []types.SubOpt) {
	r.mu.RLock()
	list := r.subChange
	r.mu.RUnlock()

	for _, h := range list {
		callSafely("subscription change handler", func() { h.fn(peer, subs) })
	}
}

func callSafely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("处理器 panic", "handler", name, "panic", r)
		}
	}()
	fn()
}
