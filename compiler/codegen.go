package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// builtinCallNames recognizes the six git built-ins as call expressions
// by name (spec §6.3), lowered to `call @NAME` with arguments pushed the
// same way a user function call's arguments are.
var builtinCallNames = map[string]string{
	"git_add_all":        "GIT_ADD_ALL",
	"git_add":            "GIT_ADD",
	"git_commit_default": "GIT_COMMIT_DEFAULT",
	"git_commit":         "GIT_COMMIT",
	"git_push_upstream":  "GIT_PUSH_UPSTREAM",
	"git_push":           "GIT_PUSH",
}

// genState is the mutable context threaded through code generation,
// grounded on codegen.rs's StaticData: the implicit pre-main
// initializer function (renamed if the user already defines `static`),
// a label counter, and a stack of (continue, break) label pairs for
// loop bodies.
type genState struct {
	preloadName string
	preloadCode strings.Builder
	labelNum    int
	loopStack   []loopLabels
}

type loopLabels struct {
	continueLabel string
	breakLabel    string
}

func (g *genState) nextLabel() string {
	g.labelNum++
	return "L" + strconv.Itoa(g.labelNum)
}

// Compile runs the full front end — lex, parse, generate — over one
// source document and returns named-mode assembly text ready for the
// linker/assembler.
func Compile(source string) (string, error) {
	lexer := NewLexer(source)
	parser := NewParser(lexer)
	prog, err := parser.Parse()
	if err != nil {
		return "", err
	}
	return Generate(prog)
}

// Generate lowers a parsed Program into assembly text (grounded on
// codegen.rs's Generator::generate).
func Generate(prog Program) (string, error) {
	g := &genState{preloadName: "static"}
	for _, e := range prog.Elements {
		if e.Function != nil && e.Function.Name == g.preloadName {
			g.preloadName += "0"
		}
	}

	var code strings.Builder
	for _, e := range prog.Elements {
		s, err := genElement(g, e)
		if err != nil {
			return "", err
		}
		code.WriteString(s)
	}

	var out strings.Builder
	out.WriteString(".named\n")
	out.WriteString(code.String())
	out.WriteString(fmt.Sprintf("@%s:\n", g.preloadName))
	if g.preloadCode.Len() > 0 {
		out.WriteString(g.preloadCode.String())
	}
	out.WriteString("ret\n")
	return out.String(), nil
}

func genElement(g *genState, e Element) (string, error) {
	switch {
	case e.Statement != nil:
		return genTopLevel(g, *e.Statement)
	case e.Function != nil:
		return genFunction(g, *e.Function)
	default:
		return "", nil
	}
}

func genTopLevel(g *genState, s TopLevelStatement) (string, error) {
	switch {
	case s.Declaration != nil:
		d := s.Declaration
		var code strings.Builder
		code.WriteString(fmt.Sprintf(".global %s\n", d.Name))
		if d.Value != nil {
			load, err := genExpr(g, *d.Value)
			if err != nil {
				return "", err
			}
			g.preloadCode.WriteString(load)
			g.preloadCode.WriteString(fmt.Sprintf("cpy $%s $_tmp\n", d.Name))
		}
		return code.String(), nil

	case s.Include != nil:
		return fmt.Sprintf(".extern %s\n", s.Include.What), nil

	case s.Use != nil:
		// `use` is parsed for source compatibility with the original
		// front end, but spec.md's directive grammar has no `.use` form
		// for the linker/assembler to act on, so it lowers to nothing.
		return "", nil

	default:
		return "", nil
	}
}

func genFunction(g *genState, f Function) (string, error) {
	var code strings.Builder
	code.WriteString(fmt.Sprintf("@%s:\n", f.Name))
	if f.Name == "main" {
		code.WriteString(fmt.Sprintf("call %s\n", g.preloadName))
	}
	for _, param := range f.Parameters {
		code.WriteString(fmt.Sprintf("pop $%s\n", param.Name))
	}
	for _, stmt := range f.Body.Statements {
		s, err := genStatement(g, stmt)
		if err != nil {
			return "", err
		}
		code.WriteString(s)
	}
	if !strings.HasSuffix(code.String(), "ret\n") {
		code.WriteString("ret\n")
	}
	return code.String(), nil
}

func genBlock(g *genState, b Block) (string, error) {
	var code strings.Builder
	for _, stmt := range b.Statements {
		s, err := genStatement(g, stmt)
		if err != nil {
			return "", err
		}
		code.WriteString(s)
	}
	return code.String(), nil
}

func genStatement(g *genState, s Statement) (string, error) {
	switch {
	case s.Block != nil:
		return genBlock(g, *s.Block)

	case s.Expression != nil:
		return genExpr(g, *s.Expression)

	case s.Declaration != nil:
		d := s.Declaration
		var code strings.Builder
		if d.Value != nil {
			v, err := genExpr(g, *d.Value)
			if err != nil {
				return "", err
			}
			code.WriteString(v)
			code.WriteString(fmt.Sprintf("cpy $%s $_tmp\n", d.Name))
		} else {
			code.WriteString(fmt.Sprintf("cpy $%s null\n", d.Name))
		}
		return code.String(), nil

	case s.Assignment != nil:
		a := s.Assignment
		v, err := genExpr(g, a.Value)
		if err != nil {
			return "", err
		}
		return v + fmt.Sprintf("cpy $%s $_tmp\n", a.Name), nil

	case s.Break:
		if len(g.loopStack) == 0 {
			return "", fmt.Errorf("break outside of a loop")
		}
		top := g.loopStack[len(g.loopStack)-1]
		return fmt.Sprintf("jmp %s\n", top.breakLabel), nil

	case s.Continue:
		if len(g.loopStack) == 0 {
			return "", fmt.Errorf("continue outside of a loop")
		}
		top := g.loopStack[len(g.loopStack)-1]
		return fmt.Sprintf("jmp %s\n", top.continueLabel), nil

	case s.If != nil:
		return genIf(g, *s.If)

	case s.While != nil:
		return genWhile(g, *s.While)

	case s.For != nil:
		return genFor(g, *s.For)

	case s.Return != nil:
		var code strings.Builder
		if s.Return.Value != nil {
			v, err := genExpr(g, *s.Return.Value)
			if err != nil {
				return "", err
			}
			code.WriteString(v)
			code.WriteString("push_ret $_tmp\n")
		}
		code.WriteString("ret\n")
		return code.String(), nil

	default:
		return "", nil
	}
}

func genIf(g *genState, i IfStatement) (string, error) {
	trueLabel := g.nextLabel()
	falseLabel := g.nextLabel()
	afterLabel := g.nextLabel()

	cond, err := genConditional(g, i.Condition, trueLabel, falseLabel)
	if err != nil {
		return "", err
	}
	body, err := genStatement(g, *i.Then)
	if err != nil {
		return "", err
	}
	var elseBody string
	if i.Else != nil {
		elseBody, err = genStatement(g, *i.Else)
		if err != nil {
			return "", err
		}
	}

	var out strings.Builder
	out.WriteString(cond)
	out.WriteString(fmt.Sprintf(".%s:\n", trueLabel))
	out.WriteString(body)
	out.WriteString(fmt.Sprintf("jmp %s\n", afterLabel))
	out.WriteString(fmt.Sprintf(".%s:\n", falseLabel))
	out.WriteString(elseBody)
	out.WriteString(fmt.Sprintf(".%s:\n", afterLabel))
	return out.String(), nil
}

// genWhile lowers a while loop to a condition-check label, body label,
// unconditional back-jump, and exit label. SPEC_FULL.md §7 notes the
// original's While codegen was an empty stub; this supplies the real
// lowering the front end needs to be usable end to end.
func genWhile(g *genState, w WhileStatement) (string, error) {
	condLabel := g.nextLabel()
	bodyLabel := g.nextLabel()
	endLabel := g.nextLabel()

	cond, err := genConditional(g, w.Condition, bodyLabel, endLabel)
	if err != nil {
		return "", err
	}

	g.loopStack = append(g.loopStack, loopLabels{continueLabel: condLabel, breakLabel: endLabel})
	body, err := genStatement(g, *w.Body)
	g.loopStack = g.loopStack[:len(g.loopStack)-1]
	if err != nil {
		return "", err
	}

	var out strings.Builder
	out.WriteString(fmt.Sprintf(".%s:\n", condLabel))
	out.WriteString(cond)
	out.WriteString(fmt.Sprintf(".%s:\n", bodyLabel))
	out.WriteString(body)
	out.WriteString(fmt.Sprintf("jmp %s\n", condLabel))
	out.WriteString(fmt.Sprintf(".%s:\n", endLabel))
	return out.String(), nil
}

// genFor lowers `for x in a..b { body }` as sugar over a counted while
// loop, the one iteration form the grammar needs (spec.md §8 seed
// scenario 3) without a generic iterator protocol.
func genFor(g *genState, f ForStatement) (string, error) {
	condLabel := g.nextLabel()
	bodyLabel := g.nextLabel()
	endLabel := g.nextLabel()
	boundVar := "_for" + strconv.Itoa(g.labelNum) + "_end"

	from, err := genExpr(g, f.From)
	if err != nil {
		return "", err
	}
	to, err := genExpr(g, f.To)
	if err != nil {
		return "", err
	}

	g.loopStack = append(g.loopStack, loopLabels{continueLabel: condLabel, breakLabel: endLabel})
	body, err := genStatement(g, *f.Body)
	g.loopStack = g.loopStack[:len(g.loopStack)-1]
	if err != nil {
		return "", err
	}

	var out strings.Builder
	out.WriteString(from)
	out.WriteString(fmt.Sprintf("cpy $%s $_tmp\n", f.Variable))
	out.WriteString(to)
	out.WriteString(fmt.Sprintf("cpy $%s $_tmp\n", boundVar))
	out.WriteString(fmt.Sprintf(".%s:\n", condLabel))
	out.WriteString(fmt.Sprintf("cmp $%s $%s\n", f.Variable, boundVar))
	out.WriteString(fmt.Sprintf("jl %s\n", bodyLabel))
	out.WriteString(fmt.Sprintf("jmp %s\n", endLabel))
	out.WriteString(fmt.Sprintf(".%s:\n", bodyLabel))
	out.WriteString(body)
	out.WriteString(fmt.Sprintf("inc $%s\n", f.Variable))
	out.WriteString(fmt.Sprintf("jmp %s\n", condLabel))
	out.WriteString(fmt.Sprintf(".%s:\n", endLabel))
	return out.String(), nil
}

func literalOperand(l Literal) (string, error) {
	switch l.Kind {
	case LitInteger:
		return strconv.FormatInt(l.Int, 10), nil
	case LitFloat:
		return strconv.FormatFloat(l.Flt, 'g', -1, 64), nil
	case LitChar:
		return fmt.Sprintf("'%c'", l.Chr), nil
	case LitString:
		return fmt.Sprintf("#\"%s\"", strings.ReplaceAll(l.Str, " ", `\s`)), nil
	case LitBool:
		return strconv.FormatBool(l.Bool), nil
	case LitNull:
		return "null", nil
	default:
		return "", fmt.Errorf("unsupported literal kind")
	}
}

func genExpr(g *genState, e Expression) (string, error) {
	switch {
	case e.Lit != nil:
		operand, err := literalOperand(*e.Lit)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("cpy $_tmp %s\n", operand), nil

	case e.Identifier != nil:
		return fmt.Sprintf("cpy $_tmp $%s\n", *e.Identifier), nil

	case e.Binary != nil:
		b := e.Binary
		mnemonic, ok := valueBinaryMnemonic(b.Operator)
		if !ok {
			return "", fmt.Errorf("operator %s is not supported in a value context", b.Operator)
		}
		right, err := genExpr(g, *b.Right)
		if err != nil {
			return "", err
		}
		left, err := genExpr(g, *b.Left)
		if err != nil {
			return "", err
		}
		var code strings.Builder
		code.WriteString(right)
		code.WriteString("cpy $_tmp2 $_tmp\n")
		code.WriteString(left)
		code.WriteString(fmt.Sprintf("%s $_tmp $_tmp2\n", mnemonic))
		return code.String(), nil

	case e.Unary != nil:
		u := e.Unary
		inner, err := genExpr(g, *u.Expr)
		if err != nil {
			return "", err
		}
		switch u.Operator {
		case OpMinus:
			return inner + "neg $_tmp\n", nil
		case OpNot:
			return inner + "not $_tmp\n", nil
		default:
			return "", fmt.Errorf("unary operator %s is not supported", u.Operator)
		}

	case e.Call != nil:
		return genCall(g, *e.Call)

	case e.Argument != nil:
		idx, err := genExpr(g, e.Argument.Index)
		if err != nil {
			return "", err
		}
		return idx + "cpy $_tmp %$_tmp\n", nil

	default:
		return "", fmt.Errorf("empty expression")
	}
}

func valueBinaryMnemonic(op Operator) (string, bool) {
	switch op {
	case OpPlus:
		return "add", true
	case OpMinus:
		return "sub", true
	case OpMultiply:
		return "mul", true
	case OpDivide:
		return "div", true
	case OpModulo:
		return "mod", true
	case OpBitwiseAnd:
		return "and", true
	case OpBitwiseOr:
		return "or", true
	case OpXor:
		return "xor", true
	case OpLeftShift:
		return "shl", true
	case OpLogicalRightShift:
		return "shr", true
	case OpArithmeticRightShift:
		return "sar", true
	default:
		return "", false
	}
}

func genCall(g *genState, c CallExpression) (string, error) {
	args := make([]Expression, len(c.Arguments))
	copy(args, c.Arguments)
	for i, j := 0, len(args)-1; i < j; i, j = i+1, j-1 {
		args[i], args[j] = args[j], args[i]
	}

	if c.Function == "print" || c.Function == "sh" {
		if len(args) != 1 {
			return "", fmt.Errorf("wrong number of arguments for builtin %q", c.Function)
		}
		arg, err := genExpr(g, args[0])
		if err != nil {
			return "", err
		}
		mnemonic := "print"
		if c.Function == "sh" {
			mnemonic = "sh"
		}
		return arg + fmt.Sprintf("%s $_tmp\n", mnemonic), nil
	}

	if builtinID, ok := builtinCallNames[c.Function]; ok {
		var code strings.Builder
		for _, arg := range args {
			a, err := genExpr(g, arg)
			if err != nil {
				return "", err
			}
			code.WriteString(a)
			code.WriteString("push $_tmp\n")
		}
		code.WriteString(fmt.Sprintf("call @%s\n", builtinID))
		return code.String(), nil
	}

	var code strings.Builder
	for _, arg := range args {
		a, err := genExpr(g, arg)
		if err != nil {
			return "", err
		}
		code.WriteString(a)
		code.WriteString("push $_tmp\n")
	}
	code.WriteString(fmt.Sprintf("call %s\n", c.Function))
	code.WriteString("pop_ret $_tmp\n")
	return code.String(), nil
}

// genConditional lowers a boolean expression directly to branches rather
// than a 0/1 materialized value, matching codegen.rs's
// codegen_conditional short-circuit approach — corrected here where the
// original's unexercised version had an inverted comparison operand
// order (see DESIGN.md).
func genConditional(g *genState, e Expression, trueLabel, falseLabel string) (string, error) {
	switch {
	case e.Lit != nil:
		l := *e.Lit
		switch l.Kind {
		case LitInteger, LitFloat, LitChar:
			operand, _ := literalOperand(l)
			return fmt.Sprintf("jnz %s %s\njmp %s\n", operand, trueLabel, falseLabel), nil
		case LitString:
			operand, _ := literalOperand(l)
			return fmt.Sprintf("cmp %s #\"\"\njne %s\njmp %s\n", operand, trueLabel, falseLabel), nil
		case LitBool:
			if l.Bool {
				return fmt.Sprintf("jmp %s\n", trueLabel), nil
			}
			return fmt.Sprintf("jmp %s\n", falseLabel), nil
		case LitNull:
			return fmt.Sprintf("jmp %s\n", falseLabel), nil
		}
		return "", fmt.Errorf("unsupported literal in conditional context")

	case e.Identifier != nil:
		return fmt.Sprintf("cmp $%s true\nje %s\njmp %s\n", *e.Identifier, trueLabel, falseLabel), nil

	case e.Binary != nil:
		b := e.Binary
		switch b.Operator {
		case OpAnd:
			midLabel := g.nextLabel()
			left, err := genConditional(g, *b.Left, midLabel, falseLabel)
			if err != nil {
				return "", err
			}
			right, err := genConditional(g, *b.Right, trueLabel, falseLabel)
			if err != nil {
				return "", err
			}
			return left + fmt.Sprintf(".%s:\n", midLabel) + right, nil

		case OpOr:
			midLabel := g.nextLabel()
			left, err := genConditional(g, *b.Left, trueLabel, midLabel)
			if err != nil {
				return "", err
			}
			right, err := genConditional(g, *b.Right, trueLabel, falseLabel)
			if err != nil {
				return "", err
			}
			return left + fmt.Sprintf(".%s:\n", midLabel) + right, nil

		case OpEqual, OpNotEqual:
			negate := b.Operator == OpNotEqual
			if b.Left.IsNull() || b.Left.IsZero() {
				return genZeroCheck(g, *b.Right, b.Left.IsNull(), negate, trueLabel, falseLabel)
			}
			if b.Right.IsNull() || b.Right.IsZero() {
				return genZeroCheck(g, *b.Left, b.Right.IsNull(), negate, trueLabel, falseLabel)
			}
			return genCompare(g, *b.Left, *b.Right, b.Operator, trueLabel, falseLabel)

		case OpLessThan, OpGreaterThan, OpLessOrEqual, OpGreaterOrEqual:
			return genCompare(g, *b.Left, *b.Right, b.Operator, trueLabel, falseLabel)

		default:
			return "", fmt.Errorf("operator %s is not supported in a conditional context", b.Operator)
		}

	case e.Unary != nil:
		if e.Unary.Operator != OpNot {
			return "", fmt.Errorf("illegal unary operator for conditional codegen")
		}
		return genConditional(g, *e.Unary.Expr, falseLabel, trueLabel)

	case e.Call != nil:
		if e.Call.Function == "print" || e.Call.Function == "sh" {
			return "", fmt.Errorf("builtin function %q does not return a boolean value", e.Call.Function)
		}
		code, err := genCall(g, *e.Call)
		if err != nil {
			return "", err
		}
		code += fmt.Sprintf("cmp $_tmp true\nje %s\njmp %s\n", trueLabel, falseLabel)
		return code, nil

	default:
		return "", fmt.Errorf("this expression is not supported for conditional codegen")
	}
}

// genZeroCheck implements the `x == 0`/`x != null` shortcuts using a
// single JZ/JNZ/JN/JNN instead of a full CMP, mirroring codegen.rs.
func genZeroCheck(g *genState, other Expression, wasNull, negate bool, trueLabel, falseLabel string) (string, error) {
	code, err := genExpr(g, other)
	if err != nil {
		return "", err
	}
	var mnemonic string
	switch {
	case wasNull && !negate:
		mnemonic = "jn"
	case wasNull && negate:
		mnemonic = "jnn"
	case !wasNull && !negate:
		mnemonic = "jz"
	default:
		mnemonic = "jnz"
	}
	return code + fmt.Sprintf("%s $_tmp %s\njmp %s\n", mnemonic, trueLabel, falseLabel), nil
}

func genCompare(g *genState, left, right Expression, op Operator, trueLabel, falseLabel string) (string, error) {
	rightCode, err := genExpr(g, right)
	if err != nil {
		return "", err
	}
	leftCode, err := genExpr(g, left)
	if err != nil {
		return "", err
	}

	var mnemonic string
	switch op {
	case OpEqual:
		mnemonic = "je"
	case OpNotEqual:
		mnemonic = "jne"
	case OpLessThan:
		mnemonic = "jl"
	case OpGreaterThan:
		mnemonic = "jg"
	case OpLessOrEqual:
		mnemonic = "jle"
	case OpGreaterOrEqual:
		mnemonic = "jge"
	default:
		return "", fmt.Errorf("operator %s is not supported for conditional codegen", op)
	}

	var code strings.Builder
	code.WriteString(rightCode)
	code.WriteString("cpy $_tmp2 $_tmp\n")
	code.WriteString(leftCode)
	code.WriteString("cmp $_tmp $_tmp2\n")
	code.WriteString(fmt.Sprintf("%s %s\n", mnemonic, trueLabel))
	code.WriteString(fmt.Sprintf("jmp %s\n", falseLabel))
	return code.String(), nil
}
