package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/rivet/engine/core"
)

type CommandBufferState int

const (
	CommandBufferStateReady CommandBufferState = iota
	CommandBufferStateRecording
	CommandBufferStateInRenderPass
	CommandBufferStateRecordingEnded
	CommandBufferStateSubmitted
	CommandBufferStateNotAllocated
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State CommandBufferState
}

func NewCommandBuffer(context *VulkanContext, pool vk.CommandPool, isPrimary bool) (*VulkanCommandBuffer, error) {
	commandBuffer := &VulkanCommandBuffer{
		State: CommandBufferStateNotAllocated,
	}

	level := vk.CommandBufferLevelPrimary
	if !isPrimary {
		level = vk.CommandBufferLevelSecondary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              level,
		CommandBufferCount: 1,
	}

	pCommandBuffers := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(context.LogicalDevice, &allocateInfo, pCommandBuffers); res != vk.Success {
		err := fmt.Errorf("failed to allocate command buffer")
		core.LogError(err.Error())
		return nil, err
	}

	commandBuffer.Handle = pCommandBuffers[0]
	commandBuffer.State = CommandBufferStateReady
	return commandBuffer, nil
}

func (v *VulkanCommandBuffer) Free(context *VulkanContext, pool vk.CommandPool) {
	vk.FreeCommandBuffers(context.LogicalDevice, pool, 1, []vk.CommandBuffer{v.Handle})
	v.Handle = nil
	v.State = CommandBufferStateNotAllocated
}

func (v *VulkanCommandBuffer) Begin(isSingleUse, isRenderpassContinue, isSimultaneousUse bool) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: 0,
	}
	if isSingleUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if isRenderpassContinue {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if isSimultaneousUse {
		beginInfo.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit)
	}

	if res := vk.BeginCommandBuffer(v.Handle, &beginInfo); res != vk.Success {
		err := fmt.Errorf("failed to begin command buffer")
		core.LogError(err.Error())
		return err
	}
	v.State = CommandBufferStateRecording
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		err := fmt.Errorf("failed to end command buffer")
		core.LogError(err.Error())
		return err
	}
	v.State = CommandBufferStateRecordingEnded
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = CommandBufferStateSubmitted
}

func (v *VulkanCommandBuffer) Reset() {
	v.State = CommandBufferStateReady
}

/**
 * Allocates and begins recording a single-use command buffer from the given pool.
 */
func AllocateAndBeginSingleUse(context *VulkanContext, pool vk.CommandPool) (*VulkanCommandBuffer, error) {
	commandBuffer, err := NewCommandBuffer(context, pool, true)
	if err != nil {
		return nil, err
	}
	if err := commandBuffer.Begin(true, false, false); err != nil {
		commandBuffer.Free(context, pool)
		return nil, err
	}
	return commandBuffer, nil
}

/**
 * Ends recording, submits to the queue and waits on a fence for completion,
 * then frees the command buffer. Waiting on a fence rather than the queue
 * keeps other in-flight work unaffected.
 */
func (v *VulkanCommandBuffer) EndSingleUse(context *VulkanContext, pool vk.CommandPool, queue vk.Queue) error {
	if err := v.End(); err != nil {
		return err
	}

	fence, err := NewFence(context, false)
	if err != nil {
		return err
	}
	defer fence.FenceDestroy(context)

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{v.Handle},
	}
	if res := vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle); res != vk.Success {
		err := fmt.Errorf("failed to submit single-use command buffer")
		core.LogError(err.Error())
		return err
	}
	v.UpdateSubmitted()

	if !fence.FenceWait(context, math.MaxUint64) {
		err := fmt.Errorf("fence wait failed for single-use command buffer")
		core.LogError(err.Error())
		return err
	}

	v.Free(context, pool)
	return nil
}
