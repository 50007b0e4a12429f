package utils

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestSlotScriptsCompile(t *testing.T) {
	if slotAcquireScript == nil || slotReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestNewConnSlots_DisabledWithoutLimit(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer rdb.Close()

	if NewConnSlots(rdb, 0, time.Minute) != nil {
		t.Fatalf("expected nil slots when limit is 0")
	}
	if NewConnSlots(nil, 3, time.Minute) != nil {
		t.Fatalf("expected nil slots without client")
	}
	s := NewConnSlots(rdb, 3, 0)
	if s == nil || s.ttl != 2*time.Hour || s.key("u1") != "ls:conns:u1" {
		t.Fatalf("unexpected slots: %+v", s)
	}
}

func TestConnSlots_AcquireRelease(t *testing.T) {
	addr := os.Getenv("LANGSWAP_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LANGSWAP_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := OpenRedis(ctx, RedisConfig{Addr: addr})
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	defer rdb.Close()

	s := NewConnSlots(rdb, 2, time.Minute)
	s.prefix = fmt.Sprintf("test:%d:conns:", time.Now().UnixNano())
	user := "u1"
	defer rdb.Del(ctx, s.key(user))

	for i := 0; i < 2; i++ {
		ok, err := s.Acquire(ctx, user)
		if err != nil || !ok {
			t.Fatalf("acquire %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, err := s.Acquire(ctx, user); err != nil || ok {
		t.Fatalf("expected limit reached, got ok=%v err=%v", ok, err)
	}
	if n, _ := rdb.Get(ctx, s.key(user)).Int(); n != 2 {
		t.Fatalf("refused acquire must not leak a slot, counter=%d", n)
	}
	if ttl := rdb.PTTL(ctx, s.key(user)).Val(); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %s", ttl)
	}

	if err := s.Release(ctx, user); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, err := s.Acquire(ctx, user); err != nil || !ok {
		t.Fatalf("expected slot after release, got ok=%v err=%v", ok, err)
	}

	for i := 0; i < 2; i++ {
		if err := s.Release(ctx, user); err != nil {
			t.Fatalf("release: %v", err)
		}
	}
	if n := rdb.Exists(ctx, s.key(user)).Val(); n != 0 {
		t.Fatalf("expected counter key deleted at zero, exists=%d", n)
	}
}
