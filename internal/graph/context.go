package graph

import (
	"sync"
	"time"
)

// Context is the shared blackboard threaded through every node of a
// run: arbitrary keyed state, per-node results, and the ordered path
// of nodes executed so far. All methods are safe for concurrent use.
type Context struct {
	mu sync.RWMutex

	taskID      string
	startTime   time.Time
	currentNode string
	state       map[string]any
	nodeResults map[string]any
	path        []string
}

func NewContext(taskID string) *Context {
	return &Context{
		taskID:      taskID,
		startTime:   time.Now(),
		state:       map[string]any{},
		nodeResults: map[string]any{},
	}
}

func (c *Context) TaskID() string { return c.taskID }

func (c *Context) StartTime() time.Time { return c.startTime }

// Set stores a value in shared state under key.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	c.state[key] = value
	c.mu.Unlock()
}

// Get returns the state value for key and whether it was present.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.state[key]
	return v, ok
}

// GetString returns the state value for key as a string, or def when
// the key is absent or not a string.
func (c *Context) GetString(key, def string) string {
	if v, ok := c.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func (c *Context) SetNodeResult(node string, result any) {
	c.mu.Lock()
	c.nodeResults[node] = result
	c.mu.Unlock()
}

func (c *Context) NodeResult(node string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.nodeResults[node]
	return v, ok
}

func (c *Context) SetCurrentNode(name string) {
	c.mu.Lock()
	c.currentNode = name
	c.mu.Unlock()
}

func (c *Context) CurrentNode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentNode
}

func (c *Context) appendPath(node string) {
	c.mu.Lock()
	c.path = append(c.path, node)
	c.mu.Unlock()
}

// Path returns a copy of the executed node sequence.
func (c *Context) Path() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.path))
	copy(out, c.path)
	return out
}

// ElapsedSeconds is the wall-clock time since the context was created.
func (c *Context) ElapsedSeconds() float64 {
	return time.Since(c.startTime).Seconds()
}
