package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/dep2p/go-dep2p-pubsub/pkg/interfaces"
)

// topicValidators 主题验证器注册表
type topicValidators struct {
	mu         sync.RWMutex
	validators map[string]interfaces.TopicValidator
}

func newTopicValidators() *topicValidators {
	return &topicValidators{
		validators: make(map[string]interfaces.TopicValidator),
	}
}

// Register 注册主题验证器，覆盖已有的
func (tv *topicValidators) Register(topic string, validator interfaces.TopicValidator) {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	tv.validators[topic] = validator
}

// Unregister 注销主题验证器
func (tv *topicValidators) Unregister(topic string) {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	delete(tv.validators, topic)
}

// Validate 执行主题验证器，没有注册时通过
func (tv *topicValidators) Validate(ctx context.Context, msg *interfaces.Message) (err error) {
	tv.mu.RLock()
	validator, ok := tv.validators[msg.Topic]
	tv.mu.RUnlock()
	if !ok {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: validator panic: %v", ErrRejected, r)
		}
	}()
	if err := validator(ctx, msg.Topic, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return nil
}
