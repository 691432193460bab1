// debug_conditions.go - Breakpoint condition parser and evaluator

package main

import (
	"fmt"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

type ConditionOp int

const (
	CondOpEqual ConditionOp = iota
	CondOpNotEqual
	CondOpLess
	CondOpGreater
	CondOpLessEqual
	CondOpGreaterEqual
)

type ConditionSource int

const (
	CondSourceRegister ConditionSource = iota
	CondSourceMemory
	CondSourceHitCount
	CondSourceLua
)

// BreakpointCondition is either a single comparison or a Lua expression.
type BreakpointCondition struct {
	Source  ConditionSource
	RegName string
	MemAddr uint64
	Op      ConditionOp
	Value   uint64

	Script string
	script *luaCondition
}

// luaCondition is a compiled script plus the interpreter it runs in. An
// LState is not safe for concurrent use, hence the mutex.
type luaCondition struct {
	proto *lua.FunctionProto

	mu sync.Mutex
	L  *lua.LState
}

// ParseCondition parses a condition string into a BreakpointCondition.
// Formats:
//
//	eax==$FF         - register EAX, op ==, value 0xFF
//	[$1000]==$42     - memory at 0x1000, op ==, value 0x42
//	hitcount>10      - hit count, op >, value 10
//	lua:<expr>       - Lua expression or chunk
//
// Anything that is not a single comparison is compiled as Lua. Registers
// are Lua globals (EAX, EIP, CS, ZF, FTOP, ST0, ...), mem(addr) reads a byte
// and hits holds the breakpoint's hit count.
func ParseCondition(text string) (*BreakpointCondition, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty condition")
	}
	if src, ok := strings.CutPrefix(text, "lua:"); ok {
		return compileLuaCondition(src)
	}
	if cond, err := parseComparison(text); err == nil {
		return cond, nil
	} else if lc, lerr := compileLuaCondition(text); lerr == nil {
		return lc, nil
	} else {
		return nil, fmt.Errorf("%v; as lua: %v", err, lerr)
	}
}

func parseComparison(text string) (*BreakpointCondition, error) {
	var op ConditionOp
	var opStr string
	var opIdx int

	for _, candidate := range []string{"==", "!=", "<=", ">=", "<", ">"} {
		idx := strings.Index(text, candidate)
		if idx >= 0 {
			opStr = candidate
			opIdx = idx
			break
		}
	}

	if opStr == "" {
		return nil, fmt.Errorf("no operator found (use ==, !=, <, >, <=, >=)")
	}

	switch opStr {
	case "==":
		op = CondOpEqual
	case "!=":
		op = CondOpNotEqual
	case "<":
		op = CondOpLess
	case ">":
		op = CondOpGreater
	case "<=":
		op = CondOpLessEqual
	case ">=":
		op = CondOpGreaterEqual
	}

	lhs := strings.TrimSpace(text[:opIdx])
	rhs := strings.TrimSpace(text[opIdx+len(opStr):])

	value, ok := ParseAddress(rhs)
	if !ok {
		return nil, fmt.Errorf("invalid value: %s", rhs)
	}

	// Memory dereference: [$1000]
	if strings.HasPrefix(lhs, "[") && strings.HasSuffix(lhs, "]") {
		addrStr := lhs[1 : len(lhs)-1]
		addr, ok := ParseAddress(addrStr)
		if !ok {
			return nil, fmt.Errorf("invalid memory address: %s", addrStr)
		}
		return &BreakpointCondition{
			Source:  CondSourceMemory,
			MemAddr: addr,
			Op:      op,
			Value:   value,
		}, nil
	}

	if strings.EqualFold(lhs, "hitcount") {
		return &BreakpointCondition{
			Source: CondSourceHitCount,
			Op:     op,
			Value:  value,
		}, nil
	}

	if lhs == "" || strings.ContainsAny(lhs, " ()") {
		return nil, fmt.Errorf("invalid register: %q", lhs)
	}
	return &BreakpointCondition{
		Source:  CondSourceRegister,
		RegName: strings.ToUpper(lhs),
		Op:      op,
		Value:   value,
	}, nil
}

// compileLuaCondition compiles src as an expression, or failing that as a
// chunk whose first return value is the result.
func compileLuaCondition(src string) (*BreakpointCondition, error) {
	src = strings.TrimSpace(src)
	proto, err := compileLua("return ("+src+")", "condition")
	if err != nil {
		var chunkErr error
		if proto, chunkErr = compileLua(src, "condition"); chunkErr != nil {
			return nil, fmt.Errorf("compile condition: %w", err)
		}
	}
	return &BreakpointCondition{
		Source: CondSourceLua,
		Script: src,
		script: &luaCondition{proto: proto},
	}, nil
}

func compileLua(src, name string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, err
	}
	return lua.Compile(chunk, name)
}

func newConditionState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.MathLibName, lua.OpenMath},
		{lua.StringLibName, lua.OpenString},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			panic(err)
		}
	}
	return L
}

// eval runs the script against cpu. Script errors count as false.
func (lc *luaCondition) eval(cpu DebuggableCPU, hitCount uint64) (bool, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.L == nil {
		lc.L = newConditionState()
	}
	L := lc.L

	for _, r := range cpu.GetRegisters() {
		L.SetGlobal(r.Name, lua.LNumber(r.Value))
	}
	L.SetGlobal("hits", lua.LNumber(hitCount))
	L.SetGlobal("mem", L.NewFunction(func(L *lua.LState) int {
		data := cpu.ReadMemory(uint64(L.CheckNumber(1)), 1)
		if len(data) == 0 {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(data[0]))
		return 1
	}))

	L.Push(L.NewFunctionFromProto(lc.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		return false, err
	}
	ret := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(ret), nil
}

// evaluateConditionWithHitCount evaluates a condition, using the provided
// hit count for CondSourceHitCount conditions and the Lua hits global.
func evaluateConditionWithHitCount(cond *BreakpointCondition, cpu DebuggableCPU, hitCount uint64) bool {
	if cond == nil {
		return true
	}

	var actual uint64
	switch cond.Source {
	case CondSourceRegister:
		val, ok := cpu.GetRegister(cond.RegName)
		if !ok {
			return false
		}
		actual = val
	case CondSourceMemory:
		data := cpu.ReadMemory(cond.MemAddr, 1)
		if len(data) == 0 {
			return false
		}
		actual = uint64(data[0])
	case CondSourceHitCount:
		actual = hitCount
	case CondSourceLua:
		ok, err := cond.script.eval(cpu, hitCount)
		return ok && err == nil
	}

	return compareValues(actual, cond.Op, cond.Value)
}

func compareValues(actual uint64, op ConditionOp, expected uint64) bool {
	switch op {
	case CondOpEqual:
		return actual == expected
	case CondOpNotEqual:
		return actual != expected
	case CondOpLess:
		return actual < expected
	case CondOpGreater:
		return actual > expected
	case CondOpLessEqual:
		return actual <= expected
	case CondOpGreaterEqual:
		return actual >= expected
	}
	return false
}

// FormatCondition returns a human-readable string for a condition.
func FormatCondition(cond *BreakpointCondition) string {
	if cond == nil {
		return ""
	}

	var lhs string
	switch cond.Source {
	case CondSourceRegister:
		lhs = cond.RegName
	case CondSourceMemory:
		lhs = fmt.Sprintf("[$%X]", cond.MemAddr)
	case CondSourceHitCount:
		lhs = "hitcount"
	case CondSourceLua:
		return "lua:" + cond.Script
	}

	var opStr string
	switch cond.Op {
	case CondOpEqual:
		opStr = "=="
	case CondOpNotEqual:
		opStr = "!="
	case CondOpLess:
		opStr = "<"
	case CondOpGreater:
		opStr = ">"
	case CondOpLessEqual:
		opStr = "<="
	case CondOpGreaterEqual:
		opStr = ">="
	}

	return fmt.Sprintf("%s%s$%X", lhs, opStr, cond.Value)
}
