package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/rivet/engine/core"
)

/**
 * @brief VulkanBindlessTable owns the single descriptor set behind the
 * shader-visible texture array: one arrayed combined-image-sampler binding
 * whose element index is the slot handed out to materials. Every element is
 * written at startup, so the set never holds an unwritten descriptor.
 */
type VulkanBindlessTable struct {
	Layout  vk.DescriptorSetLayout
	Pool    vk.DescriptorPool
	Set     vk.DescriptorSet
	Sampler vk.Sampler

	slotCount uint32
}

const bindlessTextureBinding = 0

func NewBindlessTable(context *VulkanContext, slotCount uint32) (*VulkanBindlessTable, error) {
	table := &VulkanBindlessTable{
		slotCount: slotCount,
	}

	binding := vk.DescriptorSetLayoutBinding{
		Binding:         bindlessTextureBinding,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: slotCount,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
	}
	layoutCreateInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings:    []vk.DescriptorSetLayoutBinding{binding},
	}
	var pLayout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(context.LogicalDevice, &layoutCreateInfo, context.Allocator, &pLayout); res != vk.Success {
		err := fmt.Errorf("failed to create bindless descriptor set layout")
		core.LogError(err.Error())
		return nil, err
	}
	table.Layout = pLayout

	poolSize := vk.DescriptorPoolSize{
		Type:            vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: slotCount,
	}
	poolCreateInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: 1,
		PPoolSizes:    []vk.DescriptorPoolSize{poolSize},
	}
	var pPool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(context.LogicalDevice, &poolCreateInfo, context.Allocator, &pPool); res != vk.Success {
		err := fmt.Errorf("failed to create bindless descriptor pool")
		core.LogError(err.Error())
		return nil, err
	}
	table.Pool = pPool

	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     table.Pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{table.Layout},
	}
	var pSet vk.DescriptorSet
	if res := vk.AllocateDescriptorSets(context.LogicalDevice, &allocateInfo, &pSet); res != vk.Success {
		err := fmt.Errorf("failed to allocate bindless descriptor set")
		core.LogError(err.Error())
		return nil, err
	}
	table.Set = pSet

	samplerCreateInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}
	var pSampler vk.Sampler
	if res := vk.CreateSampler(context.LogicalDevice, &samplerCreateInfo, context.Allocator, &pSampler); res != vk.Success {
		err := fmt.Errorf("failed to create bindless sampler")
		core.LogError(err.Error())
		return nil, err
	}
	table.Sampler = pSampler

	return table, nil
}

/**
 * Points one slot of the texture array at the given image view.
 */
func (bt *VulkanBindlessTable) WriteSlot(context *VulkanContext, slot uint32, view vk.ImageView) {
	imageInfo := vk.DescriptorImageInfo{
		ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		ImageView:   view,
		Sampler:     bt.Sampler,
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          bt.Set,
		DstBinding:      bindlessTextureBinding,
		DstArrayElement: slot,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo:      []vk.DescriptorImageInfo{imageInfo},
	}
	vk.UpdateDescriptorSets(context.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

/**
 * Writes every slot of the array to the given view in a single update. Used
 * at startup so no element is ever left undefined.
 */
func (bt *VulkanBindlessTable) WriteAllSlots(context *VulkanContext, view vk.ImageView) {
	imageInfos := make([]vk.DescriptorImageInfo, bt.slotCount)
	for i := range imageInfos {
		imageInfos[i] = vk.DescriptorImageInfo{
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			ImageView:   view,
			Sampler:     bt.Sampler,
		}
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          bt.Set,
		DstBinding:      bindlessTextureBinding,
		DstArrayElement: 0,
		DescriptorCount: bt.slotCount,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo:      imageInfos,
	}
	vk.UpdateDescriptorSets(context.LogicalDevice, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

func (bt *VulkanBindlessTable) Destroy(context *VulkanContext) {
	if bt.Sampler != nil {
		vk.DestroySampler(context.LogicalDevice, bt.Sampler, context.Allocator)
		bt.Sampler = nil
	}
	if bt.Pool != nil {
		vk.DestroyDescriptorPool(context.LogicalDevice, bt.Pool, context.Allocator)
		bt.Pool = nil
	}
	if bt.Layout != nil {
		vk.DestroyDescriptorSetLayout(context.LogicalDevice, bt.Layout, context.Allocator)
		bt.Layout = nil
	}
}
