package concurrent

import (
	"slices"
	"sync"
	"sync/atomic"
)

// SinglePlugin intercepts every Single subscription. It may wrap the
// subscriber and must eventually call subscribe with the subscriber the
// producer should see.
type SinglePlugin interface {
	HandleSubscribe(subscriber SingleSubscriber[any], subscribe func(SingleSubscriber[any]))
}

// CompletablePlugin intercepts every Completable subscription.
type CompletablePlugin interface {
	HandleSubscribe(subscriber CompletableSubscriber, subscribe func(CompletableSubscriber))
}

// PublisherPlugin intercepts every Publisher subscription.
type PublisherPlugin interface {
	HandleSubscribe(subscriber Subscriber[any], subscribe func(Subscriber[any]))
}

// pluginSet is a copy-on-write ordered set. Readers load the current snapshot
// without locking; writers publish a fresh slice under mu.
type pluginSet[P any] struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]P]
}

func (s *pluginSet[P]) load() []P {
	if p := s.snapshot.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *pluginSet[P]) add(plugin P) bool {
	if isNil(plugin) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.load()
	if indexOf(cur, plugin) >= 0 {
		return false
	}
	next := append(slices.Clone(cur), plugin)
	s.snapshot.Store(&next)
	return true
}

func (s *pluginSet[P]) remove(plugin P) bool {
	if isNil(plugin) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.load()
	i := indexOf(cur, plugin)
	if i < 0 {
		return false
	}
	next := slices.Delete(slices.Clone(cur), i, i+1)
	s.snapshot.Store(&next)
	return true
}

func isNil(v any) bool { return v == nil }

func indexOf[P any](plugins []P, plugin P) int {
	for i, p := range plugins {
		if samePlugin(p, plugin) {
			return i
		}
	}
	return -1
}

// samePlugin compares by identity. Non-comparable plugin values never match.
func samePlugin(a, b any) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

var (
	singlePlugins      pluginSet[SinglePlugin]
	completablePlugins pluginSet[CompletablePlugin]
	publisherPlugins   pluginSet[PublisherPlugin]
)

// AddSinglePlugin registers p. It returns false if p is nil or already present.
func AddSinglePlugin(p SinglePlugin) bool { return singlePlugins.add(p) }

// RemoveSinglePlugin unregisters p. It returns false if p was not present.
func RemoveSinglePlugin(p SinglePlugin) bool { return singlePlugins.remove(p) }

// AddCompletablePlugin registers p. It returns false if p is nil or already present.
func AddCompletablePlugin(p CompletablePlugin) bool { return completablePlugins.add(p) }

// RemoveCompletablePlugin unregisters p. It returns false if p was not present.
func RemoveCompletablePlugin(p CompletablePlugin) bool { return completablePlugins.remove(p) }

// AddPublisherPlugin registers p. It returns false if p is nil or already present.
func AddPublisherPlugin(p PublisherPlugin) bool { return publisherPlugins.add(p) }

// RemovePublisherPlugin unregisters p. It returns false if p was not present.
func RemovePublisherPlugin(p PublisherPlugin) bool { return publisherPlugins.remove(p) }

// EffectiveSinglePlugin returns one plugin composing every SinglePlugin
// registered at the time of the call, in insertion order. Later registry
// changes do not affect the returned value.
func EffectiveSinglePlugin() SinglePlugin { return singleChain(singlePlugins.load()) }

// EffectiveCompletablePlugin is the Completable counterpart of EffectiveSinglePlugin.
func EffectiveCompletablePlugin() CompletablePlugin {
	return completableChain(completablePlugins.load())
}

// EffectivePublisherPlugin is the Publisher counterpart of EffectiveSinglePlugin.
func EffectivePublisherPlugin() PublisherPlugin { return publisherChain(publisherPlugins.load()) }

// PluginCounts returns how many plugins of each kind are registered.
func PluginCounts() (single, completable, publisher int) {
	return len(singlePlugins.load()), len(completablePlugins.load()), len(publisherPlugins.load())
}

// Each chain hands plugin i the subscriber produced by plugin i-1; the last
// plugin's subscriber reaches the producer.

type singleChain []SinglePlugin

func (c singleChain) HandleSubscribe(sub SingleSubscriber[any], subscribe func(SingleSubscriber[any])) {
	if len(c) == 0 {
		subscribe(sub)
		return
	}
	c[0].HandleSubscribe(sub, func(next SingleSubscriber[any]) {
		c[1:].HandleSubscribe(next, subscribe)
	})
}

type completableChain []CompletablePlugin

func (c completableChain) HandleSubscribe(sub CompletableSubscriber, subscribe func(CompletableSubscriber)) {
	if len(c) == 0 {
		subscribe(sub)
		return
	}
	c[0].HandleSubscribe(sub, func(next CompletableSubscriber) {
		c[1:].HandleSubscribe(next, subscribe)
	})
}

type publisherChain []PublisherPlugin

func (c publisherChain) HandleSubscribe(sub Subscriber[any], subscribe func(Subscriber[any])) {
	if len(c) == 0 {
		subscribe(sub)
		return
	}
	c[0].HandleSubscribe(sub, func(next Subscriber[any]) {
		c[1:].HandleSubscribe(next, subscribe)
	})
}
