package webgpu

// WGSL compute shaders. All kernels work on flat float32 arrays; bounds are
// passed through a uniform Params block since dispatch sizes round up to
// whole workgroups.

const workgroupSize = 256

const binaryShaderTemplate = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        result[idx] = OP;
    }
}
`

const unaryShaderTemplate = `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read_write> result: array<f32>;

struct Params {
    size: u32,
}
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx < params.size) {
        let x = input[idx];
        result[idx] = OP;
    }
}
`

// matmulShader computes C = A @ B for A [M,K] and B [K,N].
const matmulShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    m: u32,
    k: u32,
    n: u32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let row = global_id.y;
    let col = global_id.x;
    if (row >= params.m || col >= params.n) {
        return;
    }

    var sum: f32 = 0.0;
    for (var i: u32 = 0u; i < params.k; i = i + 1u) {
        sum = sum + a[row * params.k + i] * b[i * params.n + col];
    }
    result[row * params.n + col] = sum;
}
`

// binaryShaders maps op names to fully expanded WGSL sources.
var binaryShaders = map[string]string{
	"add": expand(binaryShaderTemplate, "a[idx] + b[idx]"),
	"sub": expand(binaryShaderTemplate, "a[idx] - b[idx]"),
	"mul": expand(binaryShaderTemplate, "a[idx] * b[idx]"),
	"div": expand(binaryShaderTemplate, "a[idx] / b[idx]"),
}

// unaryShaders maps activation names to WGSL sources.
var unaryShaders = map[string]string{
	"relu":    expand(unaryShaderTemplate, "max(x, 0.0)"),
	"sigmoid": expand(unaryShaderTemplate, "1.0 / (1.0 + exp(-x))"),
	"tanh":    expand(unaryShaderTemplate, "tanh(x)"),
	"exp":     expand(unaryShaderTemplate, "exp(x)"),
	"sqrt":    expand(unaryShaderTemplate, "sqrt(x)"),
}
