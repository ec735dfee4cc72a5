package security

import "regexp"

// forbiddenPattern is a blacklist entry matched against raw script text.
type forbiddenPattern struct {
	Re      *regexp.Regexp
	Message string
}

func forbid(expr, msg string) forbiddenPattern {
	return forbiddenPattern{Re: regexp.MustCompile(`(?im)` + expr), Message: msg}
}

// forbiddenPatterns is evaluated in order; every match contributes its message.
var forbiddenPatterns = []forbiddenPattern{
	forbid(`import\s+os\b`, "import of module os is forbidden"),
	forbid(`import\s+sys\b`, "import of module sys is forbidden"),
	forbid(`import\s+subprocess\b`, "import of module subprocess is forbidden"),
	forbid(`import\s+threading\b`, "import of module threading is forbidden"),
	forbid(`import\s+multiprocessing\b`, "import of module multiprocessing is forbidden"),
	forbid(`import\s+requests\b`, "import of module requests is forbidden"),
	forbid(`import\s+socket\b`, "import of module socket is forbidden"),
	forbid(`import\s+ftplib\b`, "import of module ftplib is forbidden"),
	forbid(`import\s+telnetlib\b`, "import of module telnetlib is forbidden"),
	forbid(`import\s+smtplib\b`, "import of module smtplib is forbidden"),
	forbid(`import\s+ctypes\b`, "import of module ctypes is forbidden"),
	forbid(`import\s+shutil\b`, "import of module shutil is forbidden"),
	forbid(`__import__\s*\(`, "use of __import__ is forbidden"),
	forbid(`\beval\s*\(`, "use of eval is forbidden"),
	forbid(`\bexec\s*\(`, "use of exec is forbidden"),
	forbid(`\bcompile\s*\(`, "use of compile is forbidden"),
	forbid(`os\.system\s*\(`, "system command execution is forbidden (os.system)"),
	forbid(`os\.popen\s*\(`, "system command execution is forbidden (os.popen)"),
	forbid(`subprocess\.`, "use of subprocess is forbidden"),
	forbid(`shutil\.`, "use of shutil is forbidden"),
	forbid(`socket\.`, "use of socket is forbidden"),
	forbid(`threading\.`, "use of threads is forbidden"),
	forbid(`multiprocessing\.`, "use of multiple processes is forbidden"),
	forbid(`ctypes\.`, "use of ctypes is forbidden"),
	forbid(`open\s*\([^)]*[wa]`, "file write operations are forbidden"),
	forbid(`\bopen\s*\([^)]*,\s*["']w["']`, "opening files in write mode is forbidden"),
	forbid(`\bopen\s*\([^)]*,\s*["']a["']`, "opening files in append mode is forbidden"),
	forbid(`\bopen\s*\([^)]*,\s*["']wb["']`, "opening files in binary write mode is forbidden"),
	forbid(`urllib\.request`, "network requests are forbidden (urllib.request)"),
	forbid(`urllib3`, "use of urllib3 is forbidden"),
}

// riskPatterns is the reduced advisory subset applied to downloaded source.
var riskPatterns = []forbiddenPattern{
	forbid(`__import__\s*\(`, "contains __import__ call"),
	forbid(`\beval\s*\(`, "contains eval call"),
	forbid(`\bexec\s*\(`, "contains exec call"),
	forbid(`os\.system\s*\(`, "contains system command execution"),
	forbid(`subprocess\.`, "contains subprocess call"),
	forbid(`\bopen\s*\([^)]*[wa]`, "contains file write operation"),
	forbid(`socket\.`, "contains socket operation"),
	forbid(`threading\.`, "contains threading"),
	forbid(`multiprocessing\.`, "contains multiprocessing"),
}

// allowedNodeKinds lists the named tree-sitter Python node kinds a strategy may use.
var allowedNodeKinds = set(
	"module", "comment", "block", "expression_statement", "assignment",
	"identifier", "dotted_name", "integer", "float", "string", "string_start",
	"string_content", "string_end", "escape_sequence", "concatenated_string",
	"true", "false", "none",
	"binary_operator", "unary_operator", "boolean_operator", "not_operator",
	"comparison_operator", "parenthesized_expression",
	"call", "argument_list", "keyword_argument",
	"function_definition", "parameters", "default_parameter", "typed_parameter",
	"typed_default_parameter", "type",
	"if_statement", "elif_clause", "else_clause", "for_statement", "while_statement",
	"return_statement", "continue_statement", "break_statement", "pass_statement",
	"subscript", "slice", "list", "dictionary", "pair", "tuple", "set",
	"pattern_list", "tuple_pattern", "expression_list", "attribute",
	"yield", "await",
	"try_statement", "except_clause", "finally_clause", "raise_statement",
	"with_statement", "with_clause", "with_item",
	"list_splat_pattern", "dictionary_splat_pattern", "keyword_separator",
	"positional_separator", "as_pattern", "as_pattern_target",
	"generic_type", "type_parameter",
)

// dangerousNodeKinds are dynamic-eval constructs; seeing one is an error.
var dangerousNodeKinds = set("exec_statement")

// allowedCallables are builtins and domain functions callable by bare name.
var allowedCallables = set(
	"print", "len", "range", "abs", "max", "min", "sum", "sorted",
	"reversed", "zip", "enumerate", "map", "filter", "reduce",
	"isinstance", "type", "hasattr", "getattr", "setattr", "delattr",
	"int", "float", "str", "bool", "list", "dict", "set", "tuple",
	"round", "format", "hex", "oct", "bin", "ord", "chr",
	"any", "all", "divmod", "pow", "hash", "id", "memoryview",
	"slice", "property", "classmethod", "staticmethod",
	"khGet", "khPrice", "khHas", "khHistory", "khBuy", "khSell",
	"khHandlebar", "khPreMarket", "khPostMarket", "khMA", "khEMA",
	"MA", "EMA", "SMA", "DMA", "AVEDEV", "DEVA", "REF", "SUM",
	"STD", "BOLL", "BBI", "TR", "ATR", "CCI", "KPN",
	"ROC", "RSI", "WR", "KDJ", "MACD", "OBV",
	"numpy", "np",
)

// allowedModules are the top-level modules a strategy may import. Imports
// share the bare-name call whitelist, so numpy is the only real module.
var allowedModules = allowedCallables

// numericsAliases name the numerics module as it is usually bound in scripts.
var numericsAliases = set("numpy", "np")

// numericsFactories are the only numerics functions callable through an alias.
var numericsFactories = set("array", "zeros", "ones", "linspace", "arange")

// strategyCallPrefixes mark user-defined calls reserved for the strategy API.
var strategyCallPrefixes = []string{"kh", "my", "on_"}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
