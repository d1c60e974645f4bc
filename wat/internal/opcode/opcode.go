package opcode

// ImmKind describes the immediates that follow an instruction name.
type ImmKind int

const (
	ImmNone     ImmKind = iota
	ImmU32              // local.get, br, call, etc.
	ImmI32              // i32.const
	ImmI64              // i64.const
	ImmF32              // f32.const
	ImmF64              // f64.const
	ImmMemIdx           // memory.size/grow (memory index)
	ImmMemarg           // loads and stores (align, offset)
	ImmPrefixed         // 0xFC-prefixed ops, Sub holds the sub-opcode
)

const prefixMisc byte = 0xFC

// Op is the encoding of one plain instruction.
type Op struct {
	Imm   ImmKind
	Sub   uint32
	Align uint32 // natural alignment exponent of memory accesses
	Code  byte
}

// Lookup finds an instruction by its text name. Structured control
// instructions and those with irregular immediates (block, if, br_table,
// call_indirect, select, ref.*, table.get/set) are handled by the
// assembler and are not listed.
func Lookup(name string) (Op, bool) {
	op, ok := ops[name]
	return op, ok
}

var ops = map[string]Op{
	// Control
	"unreachable": {Code: 0x00},
	"nop":         {Code: 0x01},
	"return":      {Code: 0x0F},

	// Variables
	"local.get":  {Code: 0x20, Imm: ImmU32},
	"local.set":  {Code: 0x21, Imm: ImmU32},
	"local.tee":  {Code: 0x22, Imm: ImmU32},
	"global.get": {Code: 0x23, Imm: ImmU32},
	"global.set": {Code: 0x24, Imm: ImmU32},

	// Constants
	"i32.const": {Code: 0x41, Imm: ImmI32},
	"i64.const": {Code: 0x42, Imm: ImmI64},
	"f32.const": {Code: 0x43, Imm: ImmF32},
	"f64.const": {Code: 0x44, Imm: ImmF64},

	// i32 comparison
	"i32.eqz":  {Code: 0x45},
	"i32.eq":   {Code: 0x46},
	"i32.ne":   {Code: 0x47},
	"i32.lt_s": {Code: 0x48},
	"i32.lt_u": {Code: 0x49},
	"i32.gt_s": {Code: 0x4A},
	"i32.gt_u": {Code: 0x4B},
	"i32.le_s": {Code: 0x4C},
	"i32.le_u": {Code: 0x4D},
	"i32.ge_s": {Code: 0x4E},
	"i32.ge_u": {Code: 0x4F},

	// i64 comparison
	"i64.eqz":  {Code: 0x50},
	"i64.eq":   {Code: 0x51},
	"i64.ne":   {Code: 0x52},
	"i64.lt_s": {Code: 0x53},
	"i64.lt_u": {Code: 0x54},
	"i64.gt_s": {Code: 0x55},
	"i64.gt_u": {Code: 0x56},
	"i64.le_s": {Code: 0x57},
	"i64.le_u": {Code: 0x58},
	"i64.ge_s": {Code: 0x59},
	"i64.ge_u": {Code: 0x5A},

	// f32 comparison
	"f32.eq": {Code: 0x5B},
	"f32.ne": {Code: 0x5C},
	"f32.lt": {Code: 0x5D},
	"f32.gt": {Code: 0x5E},
	"f32.le": {Code: 0x5F},
	"f32.ge": {Code: 0x60},

	// f64 comparison
	"f64.eq": {Code: 0x61},
	"f64.ne": {Code: 0x62},
	"f64.lt": {Code: 0x63},
	"f64.gt": {Code: 0x64},
	"f64.le": {Code: 0x65},
	"f64.ge": {Code: 0x66},

	// i32 unary
	"i32.clz":    {Code: 0x67},
	"i32.ctz":    {Code: 0x68},
	"i32.popcnt": {Code: 0x69},

	// i32 binary
	"i32.add":   {Code: 0x6A},
	"i32.sub":   {Code: 0x6B},
	"i32.mul":   {Code: 0x6C},
	"i32.div_s": {Code: 0x6D},
	"i32.div_u": {Code: 0x6E},
	"i32.rem_s": {Code: 0x6F},
	"i32.rem_u": {Code: 0x70},
	"i32.and":   {Code: 0x71},
	"i32.or":    {Code: 0x72},
	"i32.xor":   {Code: 0x73},
	"i32.shl":   {Code: 0x74},
	"i32.shr_s": {Code: 0x75},
	"i32.shr_u": {Code: 0x76},
	"i32.rotl":  {Code: 0x77},
	"i32.rotr":  {Code: 0x78},

	// i64 unary
	"i64.clz":    {Code: 0x79},
	"i64.ctz":    {Code: 0x7A},
	"i64.popcnt": {Code: 0x7B},

	// i64 binary
	"i64.add":   {Code: 0x7C},
	"i64.sub":   {Code: 0x7D},
	"i64.mul":   {Code: 0x7E},
	"i64.div_s": {Code: 0x7F},
	"i64.div_u": {Code: 0x80},
	"i64.rem_s": {Code: 0x81},
	"i64.rem_u": {Code: 0x82},
	"i64.and":   {Code: 0x83},
	"i64.or":    {Code: 0x84},
	"i64.xor":   {Code: 0x85},
	"i64.shl":   {Code: 0x86},
	"i64.shr_s": {Code: 0x87},
	"i64.shr_u": {Code: 0x88},
	"i64.rotl":  {Code: 0x89},
	"i64.rotr":  {Code: 0x8A},

	// f32 unary
	"f32.abs":     {Code: 0x8B},
	"f32.neg":     {Code: 0x8C},
	"f32.ceil":    {Code: 0x8D},
	"f32.floor":   {Code: 0x8E},
	"f32.trunc":   {Code: 0x8F},
	"f32.nearest": {Code: 0x90},
	"f32.sqrt":    {Code: 0x91},

	// f32 binary
	"f32.add":      {Code: 0x92},
	"f32.sub":      {Code: 0x93},
	"f32.mul":      {Code: 0x94},
	"f32.div":      {Code: 0x95},
	"f32.min":      {Code: 0x96},
	"f32.max":      {Code: 0x97},
	"f32.copysign": {Code: 0x98},

	// f64 unary
	"f64.abs":     {Code: 0x99},
	"f64.neg":     {Code: 0x9A},
	"f64.ceil":    {Code: 0x9B},
	"f64.floor":   {Code: 0x9C},
	"f64.trunc":   {Code: 0x9D},
	"f64.nearest": {Code: 0x9E},
	"f64.sqrt":    {Code: 0x9F},

	// f64 binary
	"f64.add":      {Code: 0xA0},
	"f64.sub":      {Code: 0xA1},
	"f64.mul":      {Code: 0xA2},
	"f64.div":      {Code: 0xA3},
	"f64.min":      {Code: 0xA4},
	"f64.max":      {Code: 0xA5},
	"f64.copysign": {Code: 0xA6},

	// Conversions
	"i32.wrap_i64":        {Code: 0xA7},
	"i32.trunc_f32_s":     {Code: 0xA8},
	"i32.trunc_f32_u":     {Code: 0xA9},
	"i32.trunc_f64_s":     {Code: 0xAA},
	"i32.trunc_f64_u":     {Code: 0xAB},
	"i64.extend_i32_s":    {Code: 0xAC},
	"i64.extend_i32_u":    {Code: 0xAD},
	"i64.trunc_f32_s":     {Code: 0xAE},
	"i64.trunc_f32_u":     {Code: 0xAF},
	"i64.trunc_f64_s":     {Code: 0xB0},
	"i64.trunc_f64_u":     {Code: 0xB1},
	"f32.convert_i32_s":   {Code: 0xB2},
	"f32.convert_i32_u":   {Code: 0xB3},
	"f32.convert_i64_s":   {Code: 0xB4},
	"f32.convert_i64_u":   {Code: 0xB5},
	"f32.demote_f64":      {Code: 0xB6},
	"f64.convert_i32_s":   {Code: 0xB7},
	"f64.convert_i32_u":   {Code: 0xB8},
	"f64.convert_i64_s":   {Code: 0xB9},
	"f64.convert_i64_u":   {Code: 0xBA},
	"f64.promote_f32":     {Code: 0xBB},
	"i32.reinterpret_f32": {Code: 0xBC},
	"i64.reinterpret_f64": {Code: 0xBD},
	"f32.reinterpret_i32": {Code: 0xBE},
	"f64.reinterpret_i64": {Code: 0xBF},

	// Sign extension
	"i32.extend8_s":  {Code: 0xC0},
	"i32.extend16_s": {Code: 0xC1},
	"i64.extend8_s":  {Code: 0xC2},
	"i64.extend16_s": {Code: 0xC3},
	"i64.extend32_s": {Code: 0xC4},

	// Parametric
	"drop": {Code: 0x1A},

	// Control with immediates
	"br":    {Code: 0x0C, Imm: ImmU32},
	"br_if": {Code: 0x0D, Imm: ImmU32},
	"call":  {Code: 0x10, Imm: ImmU32},

	// Tail call
	"return_call": {Code: 0x12, Imm: ImmU32},

	// Memory
	"memory.size": {Code: 0x3F, Imm: ImmMemIdx},
	"memory.grow": {Code: 0x40, Imm: ImmMemIdx},

	// Reference types
	"ref.is_null": {Code: 0xD1},

	// Loads and stores
	// Loads
	"i32.load":     {Code: 0x28, Imm: ImmMemarg, Align: 2},
	"i64.load":     {Code: 0x29, Imm: ImmMemarg, Align: 3},
	"f32.load":     {Code: 0x2A, Imm: ImmMemarg, Align: 2},
	"f64.load":     {Code: 0x2B, Imm: ImmMemarg, Align: 3},
	"i32.load8_s":  {Code: 0x2C, Imm: ImmMemarg, Align: 0},
	"i32.load8_u":  {Code: 0x2D, Imm: ImmMemarg, Align: 0},
	"i32.load16_s": {Code: 0x2E, Imm: ImmMemarg, Align: 1},
	"i32.load16_u": {Code: 0x2F, Imm: ImmMemarg, Align: 1},
	"i64.load8_s":  {Code: 0x30, Imm: ImmMemarg, Align: 0},
	"i64.load8_u":  {Code: 0x31, Imm: ImmMemarg, Align: 0},
	"i64.load16_s": {Code: 0x32, Imm: ImmMemarg, Align: 1},
	"i64.load16_u": {Code: 0x33, Imm: ImmMemarg, Align: 1},
	"i64.load32_s": {Code: 0x34, Imm: ImmMemarg, Align: 2},
	"i64.load32_u": {Code: 0x35, Imm: ImmMemarg, Align: 2},
	// Stores
	"i32.store":   {Code: 0x36, Imm: ImmMemarg, Align: 2},
	"i64.store":   {Code: 0x37, Imm: ImmMemarg, Align: 3},
	"f32.store":   {Code: 0x38, Imm: ImmMemarg, Align: 2},
	"f64.store":   {Code: 0x39, Imm: ImmMemarg, Align: 3},
	"i32.store8":  {Code: 0x3A, Imm: ImmMemarg, Align: 0},
	"i32.store16": {Code: 0x3B, Imm: ImmMemarg, Align: 1},
	"i64.store8":  {Code: 0x3C, Imm: ImmMemarg, Align: 0},
	"i64.store16": {Code: 0x3D, Imm: ImmMemarg, Align: 1},
	"i64.store32": {Code: 0x3E, Imm: ImmMemarg, Align: 2},

	// Saturating truncation
	"i32.trunc_sat_f32_s": {Code: prefixMisc, Imm: ImmPrefixed, Sub: 0},
	"i32.trunc_sat_f32_u": {Code: prefixMisc, Imm: ImmPrefixed, Sub: 1},
	"i32.trunc_sat_f64_s": {Code: prefixMisc, Imm: ImmPrefixed, Sub: 2},
	"i32.trunc_sat_f64_u": {Code: prefixMisc, Imm: ImmPrefixed, Sub: 3},
	"i64.trunc_sat_f32_s": {Code: prefixMisc, Imm: ImmPrefixed, Sub: 4},
	"i64.trunc_sat_f32_u": {Code: prefixMisc, Imm: ImmPrefixed, Sub: 5},
	"i64.trunc_sat_f64_s": {Code: prefixMisc, Imm: ImmPrefixed, Sub: 6},
	"i64.trunc_sat_f64_u": {Code: prefixMisc, Imm: ImmPrefixed, Sub: 7},

	// Bulk memory
	"memory.init": {Code: prefixMisc, Imm: ImmPrefixed, Sub: 8},
	"data.drop":   {Code: prefixMisc, Imm: ImmPrefixed, Sub: 9},
	"memory.copy": {Code: prefixMisc, Imm: ImmPrefixed, Sub: 10},
	"memory.fill": {Code: prefixMisc, Imm: ImmPrefixed, Sub: 11},

	// Table operations
	"elem.drop":  {Code: prefixMisc, Imm: ImmPrefixed, Sub: 13},
	"table.init": {Code: prefixMisc, Imm: ImmPrefixed, Sub: 12},
	"table.copy": {Code: prefixMisc, Imm: ImmPrefixed, Sub: 14},
	"table.grow": {Code: prefixMisc, Imm: ImmPrefixed, Sub: 15},
	"table.size": {Code: prefixMisc, Imm: ImmPrefixed, Sub: 16},
	"table.fill": {Code: prefixMisc, Imm: ImmPrefixed, Sub: 17},
}
